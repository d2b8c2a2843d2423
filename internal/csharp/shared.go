package csharp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jcdickinson/eguinet/internal/schema"
)

// fnEnumFile renders EguiFn, the managed mirror of the native ordinal enum.
// Reserved ordinals keep their slot so the numbering matches.
func (e *emitter) fnEnumFile() *sourceFile {
	f := newSourceFile(e.pathOf(e.root, "EguiFn.g.cs"), e.root)
	w := &f.body
	w.line("/// <summary>Identifies a native function by its stable ordinal.</summary>")
	w.open("public enum EguiFn : uint")
	for _, s := range e.fns.Slots() {
		w.line("%s = %d,", s.Variant, s.Ordinal)
	}
	w.close("")
	return f
}

func (e *emitter) sortedCodecs() []codec {
	out := make([]codec, 0, len(e.plan.codecs))
	for _, c := range e.plan.codecs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

func (e *emitter) sortedArities() []arity {
	out := make([]arity, 0, len(e.plan.arities))
	for a := range e.plan.arities {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].args != out[j].args {
			return out[i].args < out[j].args
		}
		return !out[i].returns && out[j].returns
	})
	return out
}

// marshalFile renders EguiMarshal: the codec table, the native entry point
// and one Call overload per arity in use.
func (e *emitter) marshalFile() *sourceFile {
	f := newSourceFile(e.pathOf(e.root, "EguiMarshal.g.cs"), e.root)
	f.use("System.IO")
	f.use("System.Runtime.InteropServices")
	w := &f.body

	w.block(wireRuntime)
	w.line("")

	w.line("/// <summary>Moves values of one managed type across the native boundary.</summary>")
	w.open("internal static class EguiCodec<T>")
	w.line("internal static Action<T, Serde.ISerializer>? Write;")
	w.line("internal static Func<Serde.IDeserializer, T>? Read;")
	w.close("")
	w.line("")

	w.line("/// <summary>Raised when a function has no native invoker.</summary>")
	w.open("public sealed class BindingMissingException : InvalidOperationException")
	w.open("public BindingMissingException(EguiFn function)")
	w.line(": base(\"No native binding for \" + function + \" (ordinal \" + (uint)function + \")\")")
	w.line("Function = function;")
	w.close("")
	w.line("")
	w.line("public EguiFn Function { get; }")
	w.close("")
	w.line("")

	w.open("internal static unsafe partial class EguiMarshal")
	w.line("[ThreadStatic]")
	w.line("private static EguiSerializer? _serializer;")
	w.line("")
	w.open("static EguiMarshal()")
	for _, c := range e.sortedCodecs() {
		e.quote(f, c.format)
		w.line("EguiCodec<%s>.Write = %s;", c.cs, c.write)
		w.line("EguiCodec<%s>.Read = %s;", c.cs, c.read)
	}
	w.close("")
	w.line("")
	w.line("[DllImport(\"egui_net\", EntryPoint = \"egui_invoke\")]")
	w.line("private static extern byte NativeInvoke(uint function, byte* args, nuint argsLength, byte** ret, nuint* retLength);")
	w.line("")
	w.open("private static EguiSerializer GetSerializer()")
	w.line("_serializer ??= new EguiSerializer();")
	w.line("_serializer.Reset();")
	w.line("return _serializer;")
	w.close("")
	w.line("")
	w.line("// The returned bytes are copied out of the native return buffer, which")
	w.line("// is reused by the next call on this thread.")
	w.open("private static byte[] Invoke(EguiFn function, EguiSerializer serializer)")
	w.line("ReadOnlySpan<byte> args = serializer.get_bytes();")
	w.line("byte* ret;")
	w.line("nuint retLength;")
	w.open("fixed (byte* p = args)")
	w.open("if (NativeInvoke((uint)function, p, (nuint)args.Length, &ret, &retLength) == 0)")
	w.line("throw new BindingMissingException(function);")
	w.close("")
	w.close("")
	w.line("return new ReadOnlySpan<byte>(ret, (int)retLength).ToArray();")
	w.close("")
	w.line("")
	w.open("private static R Return<R>(EguiFn function, EguiSerializer serializer)")
	w.line("byte[] result = Invoke(function, serializer);")
	w.line("var deserializer = new EguiDeserializer(result);")
	w.line("R value = EguiCodec<R>.Read!(deserializer);")
	w.open("if (deserializer.get_buffer_offset() < result.Length)")
	w.line("throw new Serde.DeserializationException(\"Some input bytes were not read\");")
	w.close("")
	w.line("return value;")
	w.close("")

	for _, a := range e.sortedArities() {
		w.line("")
		e.callOverload(w, a)
	}
	w.close("")
	return f
}

// wireRuntime is the managed half of the boundary encoding. It must agree
// byte for byte with package wire: ULEB128 lengths and variant indices,
// canonical (shortest) varints only, map entries in increasing byte order.
const wireRuntime = `
/// <summary>Writes values in the encoding the native side reads.</summary>
internal sealed class EguiSerializer : Serde.BinarySerializer {
    internal const long MaxSequenceLength = int.MaxValue;

    public override void serialize_len(long value) {
        if (value < 0 || value > MaxSequenceLength) {
            throw new Serde.SerializationException("Incorrect length value: " + value);
        }
        serialize_uleb128((uint)value);
    }

    public override void serialize_variant_index(int value) => serialize_uleb128((uint)value);

    private void serialize_uleb128(uint value) {
        while (value >= 0x80) {
            output.Write((byte)((value & 0x7F) | 0x80));
            value >>= 7;
        }
        output.Write((byte)value);
    }

    public override void sort_map_entries(int[] offsets) {
        if (offsets.Length <= 1) {
            return;
        }
        output.Flush();
        byte[] data = buffer.GetBuffer();
        int start = offsets[0];
        int end = (int)buffer.Length;
        var entries = new ArraySegment<byte>[offsets.Length];
        for (int i = 0; i < offsets.Length; i++) {
            int next = i + 1 < offsets.Length ? offsets[i + 1] : end;
            entries[i] = new ArraySegment<byte>(data, offsets[i], next - offsets[i]);
        }
        Array.Sort(entries, (a, b) => a.AsSpan().SequenceCompareTo(b.AsSpan()));
        byte[] sorted = new byte[end - start];
        int position = 0;
        foreach (var entry in entries) {
            entry.AsSpan().CopyTo(sorted.AsSpan(position));
            position += entry.Count;
        }
        sorted.CopyTo(data, start);
    }
}

/// <summary>Reads values in the encoding the native side writes.</summary>
internal sealed class EguiDeserializer : Serde.BinaryDeserializer {
    internal const long MaxContainerDepth = 500;

    private readonly byte[] input;

    public EguiDeserializer(byte[] input) : base(new MemoryStream(input, false), MaxContainerDepth) {
        this.input = input;
    }

    public override long deserialize_len() {
        long value = deserialize_uleb128();
        if (value > EguiSerializer.MaxSequenceLength) {
            throw new Serde.DeserializationException("Length " + value + " exceeds the maximum sequence length");
        }
        return value;
    }

    public override int deserialize_variant_index() => (int)deserialize_uleb128();

    // Only the shortest encoding of a u32 is accepted.
    private uint deserialize_uleb128() {
        ulong value = 0;
        for (int shift = 0; shift < 32; shift += 7) {
            byte x = reader.ReadByte();
            byte digit = (byte)(x & 0x7F);
            value |= (ulong)digit << shift;
            if (value > uint.MaxValue) {
                throw new Serde.DeserializationException("Overflow while parsing uleb128-encoded u32");
            }
            if ((x & 0x80) == 0) {
                if (shift > 0 && digit == 0) {
                    throw new Serde.DeserializationException("Invalid uleb128 number (unexpected zero digit)");
                }
                return (uint)value;
            }
        }
        throw new Serde.DeserializationException("Overflow while parsing uleb128-encoded u32");
    }

    public override void check_that_key_slices_are_increasing(Serde.Range key1, Serde.Range key2) {
        var first = new ReadOnlySpan<byte>(input, key1.Start, key1.End - key1.Start);
        var second = new ReadOnlySpan<byte>(input, key2.Start, key2.End - key2.Start);
        if (first.SequenceCompareTo(second) >= 0) {
            throw new Serde.DeserializationException("Map keys are not in strictly increasing order");
        }
    }
}
`

func (e *emitter) callOverload(w *codeWriter, a arity) {
	var typeParams, params []string
	for i := 0; i < a.args; i++ {
		typeParams = append(typeParams, fmt.Sprintf("A%d", i))
		params = append(params, fmt.Sprintf("A%d a%d", i, i))
	}
	ret := "void"
	if a.returns {
		typeParams = append(typeParams, "R")
		ret = "R"
	}
	generic := ""
	if len(typeParams) > 0 {
		generic = "<" + strings.Join(typeParams, ", ") + ">"
	}

	w.open("public static %s Call%s(%s)", ret, generic, strings.Join(append([]string{"EguiFn function"}, params...), ", "))
	w.line("var serializer = GetSerializer();")
	for i := 0; i < a.args; i++ {
		w.line("EguiCodec<A%d>.Write!(a%d, serializer);", i, i)
	}
	if a.returns {
		w.line("return Return<R>(function, serializer);")
	} else {
		w.line("Invoke(function, serializer);")
	}
	w.close("")
}

// traitHelpersFile renders the (de)serializers of every container format in
// use. It must be rendered after all other files.
func (e *emitter) traitHelpersFile() *sourceFile {
	f := newSourceFile(e.pathOf(e.root, "TraitHelpers.g.cs"), e.root)
	w := &f.body

	names := make([]string, 0, len(e.helpers))
	for n := range e.helpers {
		names = append(names, n)
	}
	sort.Strings(names)

	w.open("static partial class TraitHelpers")
	for i, n := range names {
		if i > 0 {
			w.line("")
		}
		e.serializationHelper(f, n, e.helpers[n])
		w.line("")
		e.deserializationHelper(f, n, e.helpers[n])
	}
	w.close("")
	return f
}

func (e *emitter) serializationHelper(f *sourceFile, name string, t schema.Format) {
	w := &f.body
	w.open("public static void serialize_%s(%s value, Serde.ISerializer serializer)", name, e.quote(f, t))
	switch t.Kind {
	case schema.Option:
		w.open("if (value is not null)")
		w.line("serializer.serialize_option_tag(true);")
		w.raw(e.serializeValue(f, "(value ?? default)", *t.Elem))
		w.close(" else {")
		w.depth++
		w.line("serializer.serialize_option_tag(false);")
		w.close("")
	case schema.Seq:
		w.line("serializer.serialize_len(value.Count);")
		w.open("foreach (var item in value)")
		w.raw(e.serializeValue(f, "item", *t.Elem))
		w.close("")
	case schema.Map:
		w.line("serializer.serialize_len(value.Count);")
		w.line("int[] offsets = new int[value.Count];")
		w.line("int count = 0;")
		w.open("foreach (KeyValuePair<%s, %s> entry in value)", e.quote(f, *t.Key), e.quote(f, *t.Value))
		w.line("offsets[count++] = serializer.get_buffer_offset();")
		w.raw(e.serializeValue(f, "entry.Key", *t.Key))
		w.raw(e.serializeValue(f, "entry.Value", *t.Value))
		w.close("")
		w.line("serializer.sort_map_entries(offsets);")
	case schema.Tuple:
		for i, el := range t.Elems {
			w.raw(e.serializeValue(f, fmt.Sprintf("value.Item%d", i+1), el))
		}
	case schema.TupleArray:
		w.open("if (value.Count != %d)", t.Size)
		w.line("throw new Serde.SerializationException(\"Invalid length for fixed-size array: \" + value.Count + \" instead of \" + %d);", t.Size)
		w.close("")
		w.open("foreach (var item in value)")
		w.raw(e.serializeValue(f, "item", *t.Elem))
		w.close("")
	}
	w.close("")
}

func (e *emitter) deserializationHelper(f *sourceFile, name string, t schema.Format) {
	w := &f.body
	w.open("public static %s deserialize_%s(Serde.IDeserializer deserializer)", e.quote(f, t), name)
	switch t.Kind {
	case schema.Option:
		w.line("bool tag = deserializer.deserialize_option_tag();")
		w.open("if (!tag)")
		w.line("return null;")
		w.close(" else {")
		w.depth++
		w.line("return %s;", e.deserializeValue(f, *t.Elem))
		w.close("")
	case schema.Seq:
		elem := e.quote(f, *t.Elem)
		w.line("long length = deserializer.deserialize_len();")
		w.line("%s[] obj = new %s[length];", elem, elem)
		w.open("for (int i = 0; i < length; i++)")
		w.line("obj[i] = %s;", e.deserializeValue(f, *t.Elem))
		w.close("")
		w.line("return obj.ToImmutableList();")
	case schema.Map:
		w.line("long length = deserializer.deserialize_len();")
		w.line("var obj = new Dictionary<%s, %s>();", e.quote(f, *t.Key), e.quote(f, *t.Value))
		w.line("int previous_key_start = 0;")
		w.line("int previous_key_end = 0;")
		w.open("for (long i = 0; i < length; i++)")
		w.line("int key_start = deserializer.get_buffer_offset();")
		w.line("var key = %s;", e.deserializeValue(f, *t.Key))
		w.line("int key_end = deserializer.get_buffer_offset();")
		w.open("if (i > 0)")
		w.line("deserializer.check_that_key_slices_are_increasing(")
		w.line("    new Serde.Range(previous_key_start, previous_key_end),")
		w.line("    new Serde.Range(key_start, key_end));")
		w.close("")
		w.line("previous_key_start = key_start;")
		w.line("previous_key_end = key_end;")
		w.line("obj[key] = %s;", e.deserializeValue(f, *t.Value))
		w.close("")
		w.line("return obj.ToImmutableDictionary();")
	case schema.Tuple:
		parts := make([]string, len(t.Elems))
		for i, el := range t.Elems {
			parts[i] = e.deserializeValue(f, el)
		}
		if len(parts) == 1 {
			w.line("return new ValueTuple<%s>(%s);", e.quote(f, t.Elems[0]), parts[0])
		} else {
			w.line("return (%s);", strings.Join(parts, ", "))
		}
	case schema.TupleArray:
		elem := e.quote(f, *t.Elem)
		w.line("%s[] obj = new %s[%d];", elem, elem, t.Size)
		w.open("for (int i = 0; i < %d; i++)", t.Size)
		w.line("obj[i] = %s;", e.deserializeValue(f, *t.Elem))
		w.close("")
		w.line("return obj.ToImmutableList();")
	}
	w.close("")
}
