package wire

import (
	"bytes"
	"testing"
)

func TestBufferWriteRead(t *testing.T) {
	buf := NewBuffer(64)

	_ = buf.WriteByte(42)
	buf.WriteInt16(1234)
	buf.WriteInt32(567890)
	buf.WriteString("hello")
	buf.WriteBytes([]byte{1, 2, 3})
	buf.WriteCountedBytes([]byte("world"))
	buf.WriteCountedBytes(nil)

	buf.SetPosition(0)

	if b, err := buf.ReadByte(); err != nil || b != 42 {
		t.Errorf("ReadByte: got %d, err %v, want 42", b, err)
	}
	if v, err := buf.ReadInt16(); err != nil || v != 1234 {
		t.Errorf("ReadInt16: got %d, err %v, want 1234", v, err)
	}
	if v, err := buf.ReadInt32(); err != nil || v != 567890 {
		t.Errorf("ReadInt32: got %d, err %v, want 567890", v, err)
	}
	if s, err := buf.ReadString(); err != nil || s != "hello" {
		t.Errorf("ReadString: got %q, err %v, want hello", s, err)
	}
	if data, err := buf.ReadBytes(3); err != nil || !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Errorf("ReadBytes: got %v, err %v, want [1 2 3]", data, err)
	}
	if data, err := buf.ReadCountedBytes(); err != nil || string(data) != "world" {
		t.Errorf("ReadCountedBytes: got %q, err %v, want world", data, err)
	}
	if data, err := buf.ReadCountedBytes(); err != nil || data != nil {
		t.Errorf("ReadCountedBytes NULL: got %v, err %v, want nil", data, err)
	}
}

func TestReadWriteMessageRoundTrip(t *testing.T) {
	var w bytes.Buffer
	payload := BuildParse("", "SELECT 1", nil)
	if err := WriteMessage(&w, MsgParse, payload); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	msgType, got, err := ReadMessage(&w)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if msgType != MsgParse {
		t.Errorf("msgType: got %q, want %q", msgType, MsgParse)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload: got %v, want %v", got, payload)
	}
}

func TestParseRowDescriptionAndDataRow(t *testing.T) {
	fields := []FieldDescription{
		{Name: "id", DataTypeOID: 23, DataTypeSize: 4, Format: FormatText},
		{Name: "name", DataTypeOID: 25, DataTypeSize: -1, Format: FormatText},
	}

	buf := NewBuffer(64)
	buf.WriteInt16(int16(len(fields)))
	for _, f := range fields {
		buf.WriteString(f.Name)
		buf.WriteInt32(int32(f.TableOID))
		buf.WriteInt16(f.TableAttributeNumber)
		buf.WriteInt32(int32(f.DataTypeOID))
		buf.WriteInt16(f.DataTypeSize)
		buf.WriteInt32(f.TypeModifier)
		buf.WriteInt16(f.Format)
	}

	got, err := ParseRowDescription(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseRowDescription: %v", err)
	}
	if len(got) != 2 || got[0].Name != "id" || got[1].Name != "name" {
		t.Errorf("ParseRowDescription: got %+v", got)
	}
	if got[0].DataTypeOID != 23 || got[1].DataTypeOID != 25 {
		t.Errorf("ParseRowDescription OIDs: got %+v", got)
	}

	row := NewBuffer(64)
	row.WriteInt16(2)
	row.WriteCountedBytes([]byte("1"))
	row.WriteCountedBytes([]byte("alice"))

	values, err := ParseDataRow(row.Bytes())
	if err != nil {
		t.Fatalf("ParseDataRow: %v", err)
	}
	if string(values[0]) != "1" || string(values[1]) != "alice" {
		t.Errorf("ParseDataRow: got %v", values)
	}
}

func TestParseErrorFields(t *testing.T) {
	buf := NewBuffer(64)
	_ = buf.WriteByte(FieldSeverity)
	buf.WriteString("ERROR")
	_ = buf.WriteByte(FieldCode)
	buf.WriteString("42601")
	_ = buf.WriteByte(FieldMessage)
	buf.WriteString("syntax error")
	_ = buf.WriteByte(0)

	f, err := ParseErrorFields(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseErrorFields: %v", err)
	}
	if f.Severity != "ERROR" || f.SQLState != "42601" || f.Message != "syntax error" {
		t.Errorf("ParseErrorFields: got %+v", f)
	}
}

func TestBuildBindRoundTripShape(t *testing.T) {
	params := []BoundParam{
		{Value: []byte("1"), Format: FormatText},
		{Value: nil, Format: FormatText},
	}
	payload := BuildBind("", "", params, []int16{FormatText})

	buf := NewReaderBuffer(payload)
	portal, _ := buf.ReadString()
	stmt, _ := buf.ReadString()
	if portal != "" || stmt != "" {
		t.Errorf("expected unnamed portal/statement, got %q/%q", portal, stmt)
	}
	numFormats, _ := buf.ReadInt16()
	if numFormats != 2 {
		t.Errorf("numFormats: got %d, want 2", numFormats)
	}
}
