package output

import (
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"k8s.io/apimachinery/pkg/util/duration"

	"github.com/giantswarm/k7s/internal/items"
	"github.com/giantswarm/k7s/internal/resources"
)

// Printer renders resource types and items in kubectl style.
type Printer struct {
	w      io.Writer
	opts   Options
	colors *ColorScheme
	now    func() time.Time
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer, opts Options) *Printer {
	return &Printer{
		w:      w,
		opts:   opts,
		colors: NewColorScheme(w, opts.NoColor),
		now:    time.Now,
	}
}

// ResourceTypes prints one row per type, like kubectl api-resources.
func (p *Printer) ResourceTypes(types []resources.ResourceType) error {
	if done, err := writeStructured(p.w, p.opts.Format, types); done {
		return err
	}

	table := p.createTable([]string{"Name", "Shortnames", "APIVersion", "Namespaced", "Kind"})
	for _, rt := range types {
		kind := rt.Kind
		if rt.CustomResource {
			kind = p.colors.Custom(kind)
		}
		table.Append([]string{
			p.colors.Name(rt.Name),
			strings.Join(rt.ShortNames, ","),
			apiVersion(rt),
			boolString(rt.Namespaced),
			kind,
		})
	}
	table.Render()
	return nil
}

// Items prints the mapped items of rt. The namespace column is added when
// allNamespaces is set for a namespaced type.
func (p *Printer) Items(rt resources.ResourceType, list []items.ResourceItem, allNamespaces bool) error {
	if done, err := writeStructured(p.w, p.opts.Format, list); done {
		return err
	}

	withNamespace := allNamespaces && rt.Namespaced
	columns := valueNames(list, func(i items.ResourceItem) []items.ItemValue { return i.Highlighted })
	var secondary []string
	if p.opts.Wide {
		secondary = valueNames(list, func(i items.ResourceItem) []items.ItemValue { return i.Secondary })
	}

	var headers []string
	if withNamespace {
		headers = append(headers, "Namespace")
	}
	headers = append(headers, "Name")
	headers = append(headers, columns...)
	headers = append(headers, "Age")
	headers = append(headers, secondary...)

	table := p.createTable(headers)
	for _, item := range list {
		var row []string
		if withNamespace {
			row = append(row, item.Namespace)
		}
		row = append(row, p.colors.Name(item.Name))
		row = append(row, lookupValues(item.Highlighted, columns)...)
		row = append(row, p.colors.Muted(p.age(item.CreationTimestamp)))
		row = append(row, lookupValues(item.Secondary, secondary)...)
		table.Append(row)
	}
	table.Render()
	return nil
}

func (p *Printer) age(created time.Time) string {
	if created.IsZero() {
		return "<unknown>"
	}
	return duration.HumanDuration(p.now().Sub(created))
}

// createTable creates a new table with kubectl-style configuration
func (p *Printer) createTable(headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(p.w)

	// Headers are upper-cased here so that color codes survive
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	if !p.opts.NoHeaders {
		formatted := make([]string, len(headers))
		for i, h := range headers {
			formatted[i] = p.colors.Header(strings.ToUpper(h))
		}
		table.SetHeader(formatted)
	}
	return table
}

// valueNames collects the column names in first-seen order.
func valueNames(list []items.ResourceItem, values func(items.ResourceItem) []items.ItemValue) []string {
	var names []string
	seen := map[string]bool{}
	for _, item := range list {
		for _, v := range values(item) {
			if !seen[v.Name] {
				seen[v.Name] = true
				names = append(names, v.Name)
			}
		}
	}
	return names
}

func lookupValues(values []items.ItemValue, names []string) []string {
	row := make([]string, len(names))
	for i, name := range names {
		for _, v := range values {
			if v.Name == name {
				row[i] = v.Value
				break
			}
		}
	}
	return row
}

func apiVersion(rt resources.ResourceType) string {
	if rt.Group == "" {
		return rt.StorageVersion
	}
	return rt.Group + "/" + rt.StorageVersion
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
