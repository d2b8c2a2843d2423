package cmd

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jcdickinson/eguinet/internal/enumerate"
	"github.com/jcdickinson/eguinet/internal/pipeline"
	"github.com/jcdickinson/eguinet/internal/schema"
	"github.com/jcdickinson/eguinet/internal/wire"
)

var decodeCmd = &cobra.Command{
	Use:   "decode (<type> | --args <fn> | --result <fn>) [hex]",
	Short: "Decode a wire payload using the traced schema",
	Long: `Decode hex-encoded bytes as a registry type, as the argument payload of a
function, or as its return payload, and print the value as YAML. Functions
are named by canonical key or ordinal. Without a hex argument the payload
is read from stdin.`,
	Example: `  eguinet decode Theme 00
  eguinet decode --args emath_vec2_Vec2_new 0000803f00000040
  echo 0000803f | eguinet decode --result 7`,
	Args: cobra.RangeArgs(0, 2),
	Run:  runDecode,
}

var (
	decodeArgs   string
	decodeResult string
)

func init() {
	decodeCmd.Flags().StringVar(&decodeArgs, "args", "", "decode the argument payload of this function")
	decodeCmd.Flags().StringVar(&decodeResult, "result", "", "decode the return payload of this function")
	decodeCmd.MarkFlagsMutuallyExclusive("args", "result")
}

func runDecode(cmd *cobra.Command, args []string) {
	stop := pipeline.Traced
	if decodeArgs != "" || decodeResult != "" {
		stop = pipeline.Enumerated
	}
	res := mustRun(pipeline.Options{Stop: stop})

	var format schema.Format
	switch {
	case decodeArgs != "":
		format = argsFormat(lookupFunction(res.Enumeration, decodeArgs))
	case decodeResult != "":
		format = resultFormat(lookupFunction(res.Enumeration, decodeResult))
	default:
		if len(args) == 0 {
			logger.Fatal("a type name, --args or --result is required")
		}
		if _, ok := res.Registry[args[0]]; !ok {
			logger.Fatal("type was not traced", zap.String("type", args[0]))
		}
		format = schema.Named(args[0])
		args = args[1:]
	}

	payload, err := readPayload(args)
	if err != nil {
		logger.Fatal("reading payload", zap.Error(err))
	}

	v, err := wire.NewValueCodec(res.Registry).DecodeAll(format, payload)
	if err != nil {
		logger.Fatal("decoding payload", zap.Stringer("format", format), zap.Error(err))
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(wire.ValueNode(v)); err != nil {
		logger.Fatal("rendering value", zap.Error(err))
	}
	enc.Close()
}

func lookupFunction(e *enumerate.Enumeration, name string) *enumerate.Descriptor {
	if n, err := strconv.ParseUint(name, 10, 32); err == nil {
		d, err := e.Lookup(uint32(n))
		if err != nil {
			logger.Fatal("no such ordinal", zap.Error(err))
		}
		return d
	}
	d, ok := e.ByKey(name)
	if !ok {
		logger.Fatal("no enumerated function with this key", zap.String("key", name))
	}
	return d
}

// argsFormat is the payload of a call: every input in order, receiver
// first.
func argsFormat(d *enumerate.Descriptor) schema.Format {
	if len(d.Inputs) == 0 {
		return schema.Prim(schema.Unit)
	}
	elems := make([]schema.Format, len(d.Inputs))
	for i, p := range d.Inputs {
		elems[i] = p.Type.Owned().Format()
	}
	return schema.TupleOf(elems...)
}

func resultFormat(d *enumerate.Descriptor) schema.Format {
	if d.Output == nil {
		return schema.Prim(schema.Unit)
	}
	return d.Output.Owned().Format()
}

func readPayload(args []string) ([]byte, error) {
	var text string
	if len(args) > 0 {
		text = args[0]
	} else {
		data, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err != nil {
			return nil, err
		}
		text = string(data)
	}
	text = strings.Join(strings.Fields(text), "")
	text = strings.TrimPrefix(text, "0x")
	b, err := hex.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("payload is not hex: %w", err)
	}
	return b, nil
}
