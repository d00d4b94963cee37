package app

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"
)

const testContainerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const testPackageOPF = `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <manifest>
    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="ch2.xhtml" media-type="application/xhtml+xml"/>
    <item id="missing" href="gone.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="ch2"/>
    <itemref idref="ch1"/>
    <itemref idref="missing"/>
    <itemref idref="unknown"/>
  </spine>
</package>`

func buildEPUB(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("write zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestReadArchiveSpineOrder(t *testing.T) {
	data := buildEPUB(t, map[string]string{
		containerPath:       testContainerXML,
		"OEBPS/content.opf": testPackageOPF,
		"OEBPS/ch1.xhtml":   "<html><body><p>one</p></body></html>",
		"OEBPS/ch2.xhtml":   "<html><body><p>two</p></body></html>",
	})
	docs, err := readArchive(context.Background(), data)
	if err != nil {
		t.Fatalf("readArchive: %v", err)
	}
	// ch2 precedes ch1 in the spine; unresolvable refs are skipped.
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	if docs[0].Name != "OEBPS/ch2.xhtml" || docs[1].Name != "OEBPS/ch1.xhtml" {
		t.Errorf("spine order not honored: %s, %s", docs[0].Name, docs[1].Name)
	}
}

func TestReadArchiveCorrupt(t *testing.T) {
	if _, err := readArchive(context.Background(), []byte("not a zip")); !errors.Is(err, ErrArchiveCorrupt) {
		t.Fatalf("err = %v, want ErrArchiveCorrupt", err)
	}
	// A valid but empty zip is also corrupt for our purposes.
	if _, err := readArchive(context.Background(), buildEPUB(t, nil)); !errors.Is(err, ErrArchiveCorrupt) {
		t.Fatalf("empty zip err = %v, want ErrArchiveCorrupt", err)
	}
}

func TestReadArchiveManifestMissing(t *testing.T) {
	cases := []struct {
		name  string
		files map[string]string
	}{
		{
			name:  "no container",
			files: map[string]string{"OEBPS/ch1.xhtml": "<p>x</p>"},
		},
		{
			name: "container points nowhere",
			files: map[string]string{
				containerPath:     testContainerXML,
				"OEBPS/ch1.xhtml": "<p>x</p>",
			},
		},
		{
			name: "opf unparseable",
			files: map[string]string{
				containerPath:       testContainerXML,
				"OEBPS/content.opf": "<<<not xml",
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := readArchive(context.Background(), buildEPUB(t, tc.files)); !errors.Is(err, ErrManifestMissing) {
				t.Fatalf("err = %v, want ErrManifestMissing", err)
			}
		})
	}
}

func TestReadArchiveNoContent(t *testing.T) {
	// Manifest and spine are valid but no spine item resolves to a file.
	data := buildEPUB(t, map[string]string{
		containerPath:       testContainerXML,
		"OEBPS/content.opf": testPackageOPF,
	})
	if _, err := readArchive(context.Background(), data); !errors.Is(err, ErrNoContent) {
		t.Fatalf("err = %v, want ErrNoContent", err)
	}
}
