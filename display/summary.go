package display

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ikawaha/deblur.go/engine"
	"github.com/olekukonko/tablewriter"
)

// Summary writes a table of the stages of the network.
func Summary(w io.Writer, net *engine.Network) {
	fmt.Fprintf(w, "Model: %q\n", net.Name)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Layer (type)", "Output Shape", "Param #", "Connected to"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for _, l := range net.Summary() {
		table.Append([]string{
			fmt.Sprintf("%s (%s)", l.Name, l.Kind),
			l.Shape.String(),
			strconv.Itoa(l.Params),
			strings.Join(l.Inputs, ", "),
		})
	}
	table.Render()
	fmt.Fprintf(w, "Total params: %d\n", net.NumParams())
}
