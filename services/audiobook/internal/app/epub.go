package app

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"path"
	"strings"

	"harmonicai/internal/util"
)

// Archive reader failure modes, surfaced to the client as ingestion errors.
var (
	ErrArchiveCorrupt  = errors.New("epub archive is corrupt or empty")
	ErrManifestMissing = errors.New("epub manifest is missing or unreadable")
	ErrNoContent       = errors.New("epub contains no readable content documents")
)

const containerPath = "META-INF/container.xml"

type epubContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type epubPackage struct {
	Manifest struct {
		Items []struct {
			ID        string `xml:"id,attr"`
			Href      string `xml:"href,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// spineDoc is one content document of the archive in reading order.
type spineDoc struct {
	Name string
	Data []byte
}

// readArchive walks an EPUB: container.xml points at the OPF package, whose
// manifest maps item ids to files and whose spine fixes the reading order.
// Spine items that do not resolve to a readable archive entry are logged and
// skipped rather than failing the whole book.
func readArchive(ctx context.Context, data []byte) ([]spineDoc, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil || len(zr.File) == 0 {
		return nil, ErrArchiveCorrupt
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	containerData, err := readZipFile(files[containerPath])
	if err != nil {
		return nil, ErrManifestMissing
	}
	var container epubContainer
	if err := xml.Unmarshal(containerData, &container); err != nil {
		return nil, ErrManifestMissing
	}
	var opfPath string
	for _, rf := range container.Rootfiles {
		if rf.FullPath != "" {
			opfPath = rf.FullPath
			break
		}
	}
	if opfPath == "" {
		return nil, ErrManifestMissing
	}
	opfData, err := readZipFile(files[opfPath])
	if err != nil {
		return nil, ErrManifestMissing
	}
	var pkg epubPackage
	if err := xml.Unmarshal(opfData, &pkg); err != nil {
		return nil, ErrManifestMissing
	}

	hrefByID := make(map[string]string, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		hrefByID[item.ID] = item.Href
	}
	opfDir := path.Dir(opfPath)
	logger := util.LoggerFromContext(ctx)
	docs := make([]spineDoc, 0, len(pkg.Spine.ItemRefs))
	for _, ref := range pkg.Spine.ItemRefs {
		href, ok := hrefByID[ref.IDRef]
		if !ok || href == "" {
			logger.Warn("spine item missing from manifest", "idref", ref.IDRef)
			continue
		}
		name := resolveHref(opfDir, href)
		docData, err := readZipFile(files[name])
		if err != nil {
			logger.Warn("spine item unreadable, skipping", "href", name)
			continue
		}
		docs = append(docs, spineDoc{Name: name, Data: docData})
	}
	if len(docs) == 0 {
		return nil, ErrNoContent
	}
	return docs, nil
}

func resolveHref(dir, href string) string {
	href = strings.TrimPrefix(href, "./")
	if dir == "." || dir == "" {
		return href
	}
	return path.Join(dir, href)
}

func readZipFile(f *zip.File) ([]byte, error) {
	if f == nil {
		return nil, errors.New("file not present in archive")
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
