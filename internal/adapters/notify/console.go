package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/hodlbook/internal/domain"
	"github.com/alejandrodnm/hodlbook/internal/views"
)

// maxFilledGroups limita cuántas órdenes con fills se listan debajo de la tabla.
const maxFilledGroups = 5

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify imprime la vista en el modo configurado.
func (c *Console) Notify(_ context.Context, view views.View) error {
	now := view.GeneratedAt.Format("15:04:05")
	if len(view.Rows) == 0 {
		fmt.Fprintf(c.out, "[%s] %s: no orders\n", now, view.Mode)
		return nil
	}

	if c.table {
		c.printFull(view)
	} else {
		c.printCompact(view)
	}
	return nil
}

// Alert imprime una notificación nueva en una línea.
func (c *Console) Alert(_ context.Context, n domain.Notification) error {
	fmt.Fprintf(c.out, "[%s] %s %s\n", n.Time().Format("15:04:05"), kindIcon(n.Kind), n.Message)
	return nil
}

// printCompact imprime un resumen de una línea con las primeras órdenes.
func (c *Console) printCompact(view views.View) {
	open, stopped, expired := countByDisplay(view.Rows)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s: %d orders → open:%d stopped:%d expired:%d",
		view.GeneratedAt.Format("15:04:05"), view.Mode, len(view.Rows), open, stopped, expired)

	for i, row := range view.Rows {
		if i >= 4 {
			break
		}
		mark := ""
		if row.Highlight {
			mark = "*"
		}
		fmt.Fprintf(&sb, " | %s%s %s %s@%s", mark, domain.ShortUUID(row.UUID), row.Type, subnetLabel(row), formatAmount(row.Price))
	}
	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime la tabla completa y los fills agrupados.
func (c *Console) printFull(view views.View) {
	fmt.Fprintf(c.out, "\n[%s] %s - %d orders\n", view.GeneratedAt.Format("15:04:05"), view.Mode, len(view.Rows))

	table := tablewriter.NewWriter(c.out)
	table.Header("", "UUID", "Type", "Subnet", "Status", "Price", "Tao", "Alpha", "Escrow", "Date")
	for _, row := range view.Rows {
		mark := ""
		if row.Highlight {
			mark = "*"
		}
		table.Append(
			mark,
			domain.ShortUUID(row.UUID),
			row.Type.String(),
			subnetLabel(row),
			row.Display.String(),
			formatAmount(row.Price),
			formatAmount(row.Tao),
			formatAmount(row.Alpha),
			truncate(row.Escrow, 12),
			row.Date,
		)
	}
	table.Render()

	c.printFilled(view.Filled)
}

// printFilled lista los fills más recientes agrupados por orden de origen.
func (c *Console) printFilled(filled map[string][]domain.Order) {
	if len(filled) == 0 {
		return
	}
	parents := make([]string, 0, len(filled))
	for parent := range filled {
		parents = append(parents, parent)
	}
	// El primer registro de cada grupo es el más reciente.
	sort.Slice(parents, func(i, j int) bool {
		ti, tj := filled[parents[i]][0].DateTime(), filled[parents[j]][0].DateTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return parents[i] < parents[j]
	})

	fmt.Fprintf(c.out, "  fills (%d orders)\n", len(parents))
	for i, parent := range parents {
		if i >= maxFilledGroups {
			fmt.Fprintf(c.out, "  ... %d more\n", len(parents)-maxFilledGroups)
			break
		}
		group := filled[parent]
		last := group[0]
		fmt.Fprintf(c.out, "  %s  %d records, last %s %s tao=%s alpha=%s\n",
			domain.ShortUUID(parent), len(group), last.Status, last.Date,
			formatAmount(last.Tao), formatAmount(last.Alpha))
	}
}

func countByDisplay(rows []views.Row) (open, stopped, expired int) {
	for _, r := range rows {
		switch r.Display {
		case domain.StatusOpen:
			open++
		case domain.StatusStopped:
			stopped++
		case domain.StatusExpired:
			expired++
		}
	}
	return
}

func subnetLabel(row views.Row) string {
	if row.SubnetName != "" {
		return fmt.Sprintf("SN%d %s", row.Asset, row.SubnetName)
	}
	return fmt.Sprintf("SN%d", row.Asset)
}

func formatAmount(v float64) string {
	if v == 0 {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func kindIcon(kind domain.NotificationKind) string {
	switch kind {
	case domain.NotifyFilled:
		return "[FILLED]"
	case domain.NotifyCancelled:
		return "[CLOSED]"
	default:
		return "[" + strings.ToUpper(string(kind)) + "]"
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
