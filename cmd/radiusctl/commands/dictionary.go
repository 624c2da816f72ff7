package commands

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openradius/goradius/internal/radius"
)

// errAttributeNotFound indicates a dictionary lookup missed.
var errAttributeNotFound = errors.New("attribute not found")

func dictionaryCmd() *cobra.Command {
	var extraPaths []string

	cmd := &cobra.Command{
		Use:   "dictionary",
		Short: "Inspect the attribute dictionary",
	}
	cmd.PersistentFlags().StringArrayVar(&extraPaths, "dictionary-file", nil,
		"additional dictionary file to load alongside the embedded default; repeatable")

	cmd.AddCommand(dictionaryLookupCmd(&extraPaths))
	return cmd
}

func dictionaryLookupCmd(extraPaths *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <attribute-name>",
		Short: "Print an attribute's dictionary entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dict, err := radius.LoadDictionaryWithExtras(*extraPaths)
			if err != nil {
				return fmt.Errorf("load dictionary: %w", err)
			}

			tmpl, ok := dict.AttributeByName(args[0])
			if !ok {
				return fmt.Errorf("%w: %q", errAttributeNotFound, args[0])
			}

			fmt.Print(formatAttributeTemplate(tmpl))
			return nil
		},
	}
}

func formatAttributeTemplate(tmpl *radius.AttributeTemplate) string {
	var buf strings.Builder
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Name:\t%s\n", tmpl.Name)
	fmt.Fprintf(tw, "Vendor ID:\t%d\n", tmpl.VendorID)
	fmt.Fprintf(tw, "Type:\t%d\n", tmpl.Type)
	fmt.Fprintf(tw, "Data type:\t%s\n", dataTypeName(tmpl.DataType))
	fmt.Fprintf(tw, "Tagged:\t%v\n", tmpl.Tagged)
	_ = tw.Flush()
	return buf.String()
}

// dataTypeNames mirrors the dictionary grammar's token set for display;
// it is the inverse of radius.ParseDataType.
var dataTypeNames = map[radius.DataType]string{
	radius.TypeOctets:     "octets",
	radius.TypeString:     "string",
	radius.TypeInteger:    "integer",
	radius.TypeDate:       "date",
	radius.TypeIPAddr:     "ipaddr",
	radius.TypeIPv6Addr:   "ipv6addr",
	radius.TypeIPv6Prefix: "ipv6prefix",
	radius.TypeIfID:       "ifid",
	radius.TypeInteger64:  "integer64",
	radius.TypeEther:      "ether",
	radius.TypeABinary:    "abinary",
	radius.TypeByte:       "byte",
	radius.TypeShort:      "short",
	radius.TypeSigned:     "signed",
	radius.TypeTLV:        "tlv",
	radius.TypeIPv4Prefix: "ipv4prefix",
	radius.TypeVSA:        "vsa",
}

func dataTypeName(dt radius.DataType) string {
	if name, ok := dataTypeNames[dt]; ok {
		return name
	}
	return "unknown"
}
