package codec

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/ValentinKolb/dSync/cmd/util"
	"github.com/ValentinKolb/dSync/lib/codec/bincodec"
	"github.com/ValentinKolb/dSync/lib/codec/structured"
	"github.com/ValentinKolb/dSync/lib/demo"
	"github.com/ValentinKolb/dSync/lib/schema"
	"github.com/ValentinKolb/dSync/lib/schema/yamlschema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	registry *schema.Registry

	// CodecCommands converts objects between the structured text and the binary format
	CodecCommands = &cobra.Command{
		Use:   "codec",
		Short: "Convert objects between the text and the binary format",
		Long: `Convert objects between the structured text format (e.g. Point{x:1;y:2;}) and the tagged binary format.
The demo types (Point, Player, Board) are always known, additional types can be declared in a YAML schema file.
Input is read from the argument or, if it is missing or "-", from stdin.`,
		PersistentPreRunE: loadSchema,
	}

	encodeCmd = &cobra.Command{
		Use:   "encode [text]",
		Short: "Encodes a structured text object as tagged binary",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInput(cmd, args, false)
			if err != nil {
				return err
			}
			out, err := Encode(registry, in)
			if err != nil {
				return err
			}
			if viper.GetBool("raw") {
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(out))
			return nil
		},
	}

	decodeCmd = &cobra.Command{
		Use:   "decode [hex]",
		Short: "Decodes a tagged binary object to structured text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInput(cmd, args, viper.GetBool("raw"))
			if err != nil {
				return err
			}
			if !viper.GetBool("raw") {
				if in, err = hex.DecodeString(strings.TrimSpace(string(in))); err != nil {
					return fmt.Errorf("input is not hex encoded: %w", err)
				}
			}
			out, err := Decode(registry, in)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(structured.Indent(out, "  ")))
			return nil
		},
	}

	checkCmd = &cobra.Command{
		Use:   "check [text]",
		Short: "Checks that a structured text object is well-formed and matches its type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInput(cmd, args, false)
			if err != nil {
				return err
			}
			if !structured.Valid(in) {
				return fmt.Errorf("input is not a well-formed stream")
			}
			o, err := structured.NewCodec(registry).Unmarshal(in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid %s\n", o.TypeName())
			return nil
		},
	}

	typesCmd = &cobra.Command{
		Use:   "types",
		Short: "Lists all known types with their fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range registry.Names() {
				t, _ := registry.Lookup(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", name)
				for _, f := range t.Fields() {
					fmt.Fprintf(cmd.OutOrStdout(), "  %-12s %s\n", f.Name, f.Type)
				}
			}
			return nil
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitClientConfig)

	key := "schema"
	CodecCommands.PersistentFlags().String(key, "", util.WrapString("Optional YAML file declaring additional types"))

	key = "raw"
	CodecCommands.PersistentFlags().Bool(key, false, util.WrapString("Read or write the binary format as raw bytes instead of hex"))

	CodecCommands.AddCommand(encodeCmd)
	CodecCommands.AddCommand(decodeCmd)
	CodecCommands.AddCommand(checkCmd)
	CodecCommands.AddCommand(typesCmd)
}

// loadSchema builds the registry of the demo types and the types of --schema
func loadSchema(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	reg, err := NewRegistry(viper.GetString("schema"))
	if err != nil {
		return err
	}
	registry = reg
	return nil
}

// NewRegistry returns a frozen registry holding the demo types and, if path
// is set, the types declared in the YAML file at path.
func NewRegistry(path string) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	if err := demo.Register(reg); err != nil {
		return nil, err
	}
	if path != "" {
		if err := yamlschema.Load(path, reg); err != nil {
			return nil, err
		}
	}
	if err := reg.Freeze(); err != nil {
		return nil, err
	}
	return reg, nil
}

// Encode converts a structured text object to tagged binary.
func Encode(reg *schema.Registry, text []byte) ([]byte, error) {
	o, err := structured.NewCodec(reg).Unmarshal(text)
	if err != nil {
		return nil, err
	}
	return bincodec.NewCodec(reg).MarshalTagged(o)
}

// Decode converts a tagged binary object to structured text.
func Decode(reg *schema.Registry, data []byte) ([]byte, error) {
	o, err := bincodec.NewCodec(reg).UnmarshalTagged(data)
	if err != nil {
		return nil, err
	}
	return structured.NewCodec(reg).Marshal(o)
}

// readInput returns the first argument or, if it is missing or "-", stdin.
// Surrounding whitespace is trimmed unless binary is set.
func readInput(cmd *cobra.Command, args []string, binary bool) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		return []byte(args[0]), nil
	}
	in, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, err
	}
	if binary {
		return in, nil
	}
	return bytes.TrimSpace(in), nil
}
