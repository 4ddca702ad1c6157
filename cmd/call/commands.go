package call

import (
	"context"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dSync/lib/codec/structured"
	"github.com/ValentinKolb/dSync/lib/schema"
	"github.com/ValentinKolb/dSync/rpc/invoke"
	"github.com/spf13/cobra"
)

// methodCommand creates the subcommand that invokes m
func methodCommand(m invoke.Method) *cobra.Command {
	use := m.Name
	for i, p := range m.Params {
		use += fmt.Sprintf(" [arg%d:%s]", i, p)
	}

	return &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Calls %s", m.Signature()),
		Args:  cobra.ExactArgs(len(m.Params)),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := ParseArgs(codec, m.Params, args)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), config.Timeout())
			defer cancel()

			res, err := invoker.Call(ctx, m.Name, values...)
			if err != nil {
				return err
			}
			if !m.HasResult() {
				fmt.Println("sent successfully")
				return nil
			}

			out, err := FormatValue(codec, m.Result, res)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
}

// ParseArgs decodes command line arguments in parameter order. A string
// parameter that is not quoted is taken literally.
func ParseArgs(codec *structured.Codec, params []schema.ValueType, args []string) ([]any, error) {
	if len(args) != len(params) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(params), len(args))
	}
	values := make([]any, len(args))
	for i, arg := range args {
		if params[i].Kind == schema.KindString && !strings.HasPrefix(arg, `"`) {
			values[i] = arg
			continue
		}
		v, err := codec.UnmarshalValue(params[i], []byte(arg))
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s): %w", i, params[i], err)
		}
		values[i] = v
	}
	return values, nil
}

// FormatValue renders a result for the terminal. Objects are indented.
func FormatValue(codec *structured.Codec, vt schema.ValueType, v any) (string, error) {
	if vt.Kind == schema.KindString {
		s, _ := v.(string)
		return s, nil
	}
	data, err := codec.MarshalValue(vt, v)
	if err != nil {
		return "", err
	}
	if vt.Kind == schema.KindObject {
		data = structured.Indent(data, "  ")
	}
	return string(data), nil
}
