package sheet

import (
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"
)

func workbook(t *testing.T, cells [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range cells {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRecipients_FromWorkbook(t *testing.T) {
	data := workbook(t, [][]any{{"Email"}, {"a@x.com"}, {"not-an-email"}, {"b@y.com"}})
	rows, err := Rows("list.xlsx", data)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	got := Recipients(rows)
	want := []string{"a@x.com", "b@y.com"}
	if !equal(got, want) {
		t.Errorf("Recipients = %q, want %q", got, want)
	}
}

func TestRows_SniffsWorkbookWithoutExtension(t *testing.T) {
	data := workbook(t, [][]any{{"Email", "Name"}, {"a@x.com", "A"}})
	rows, err := Rows("", data)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 2 || rows[1][1] != "A" {
		t.Errorf("rows = %q", rows)
	}
}

func TestRows_CSV(t *testing.T) {
	data := []byte("\xef\xbb\xbfEmail,Name\n a@x.com ,A\nnope,B\nb@y.com,C\n")
	rows, err := Rows("list.csv", data)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	got := Recipients(rows)
	want := []string{"a@x.com", "b@y.com"}
	if !equal(got, want) {
		t.Errorf("Recipients = %q, want %q", got, want)
	}
}

func TestRows_SemicolonCSV(t *testing.T) {
	rows, err := Rows("export.csv", []byte("E-posta;Ad\na@x.com;A\n"))
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows[1]) != 2 || rows[1][0] != "a@x.com" {
		t.Errorf("rows = %q", rows)
	}
}

func TestRows_Unsupported(t *testing.T) {
	_, err := Rows("photo.bin", []byte{0x89, 'P', 'N', 'G', 0, 0})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestRows_CorruptWorkbook(t *testing.T) {
	if _, err := Rows("broken.xlsx", []byte("PK\x03\x04garbage")); err == nil {
		t.Fatal("expected error for corrupt workbook")
	}
}

func TestRecipients_SkipsHeaderAndEmptyRows(t *testing.T) {
	rows := [][]string{{"x@header.com"}, {}, {"  c@z.com  "}, {"", "d@z.com"}}
	got := Recipients(rows)
	if !equal(got, []string{"c@z.com"}) {
		t.Errorf("Recipients = %q, want [c@z.com]", got)
	}
}
