// Package epub inspects EPUB containers just enough to validate an uploaded
// language pack and report its metadata and table of contents. The reader
// core never uses this; content parsing for display belongs to the embedded
// viewer.
package epub

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/net/html"

	"riverreader/pkg/domain"
)

// Info is the metadata extracted from an EPUB container.
type Info struct {
	Title    string
	Author   string
	Language string
	Chapters []domain.Chapter
}

type container struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type pkg struct {
	Metadata struct {
		Title    string `xml:"title"`
		Creator  string `xml:"creator"`
		Language string `xml:"language"`
	} `xml:"metadata"`
	Manifest struct {
		Items []struct {
			ID         string `xml:"id,attr"`
			Href       string `xml:"href,attr"`
			MediaType  string `xml:"media-type,attr"`
			Properties string `xml:"properties,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
}

type ncx struct {
	NavPoints []navPoint `xml:"navMap>navPoint"`
}

type navPoint struct {
	ID    string `xml:"id,attr"`
	Label string `xml:"navLabel>text"`
	Src   struct {
		Value string `xml:"src,attr"`
	} `xml:"content"`
	Children []navPoint `xml:"navPoint"`
}

// Inspect opens the EPUB at path and extracts metadata and TOC.
func Inspect(epubPath string) (Info, error) {
	reader, err := zip.OpenReader(epubPath)
	if err != nil {
		return Info{}, fmt.Errorf("open epub: %w", err)
	}
	defer reader.Close()
	return inspect(&reader.Reader)
}

// InspectReader inspects an EPUB already held in memory or on a seekable
// stream, as uploads arrive.
func InspectReader(r io.ReaderAt, size int64) (Info, error) {
	reader, err := zip.NewReader(r, size)
	if err != nil {
		return Info{}, fmt.Errorf("open epub: %w", err)
	}
	return inspect(reader)
}

func inspect(reader *zip.Reader) (Info, error) {
	var c container
	if err := decodeXML(reader, "META-INF/container.xml", &c); err != nil {
		return Info{}, err
	}
	if len(c.Rootfiles) == 0 || c.Rootfiles[0].FullPath == "" {
		return Info{}, fmt.Errorf("epub container has no rootfile")
	}
	opfPath := c.Rootfiles[0].FullPath

	var p pkg
	if err := decodeXML(reader, opfPath, &p); err != nil {
		return Info{}, err
	}

	info := Info{
		Title:    normalizeSpace(p.Metadata.Title),
		Author:   normalizeSpace(p.Metadata.Creator),
		Language: strings.TrimSpace(p.Metadata.Language),
	}

	opfDir := path.Dir(opfPath)
	chapters, err := extractTOC(reader, p, opfDir)
	if err != nil {
		return Info{}, err
	}
	info.Chapters = chapters
	return info, nil
}

// extractTOC prefers the EPUB3 nav document and falls back to the EPUB2 NCX.
func extractTOC(reader *zip.Reader, p pkg, opfDir string) ([]domain.Chapter, error) {
	for _, item := range p.Manifest.Items {
		if strings.Contains(item.Properties, "nav") {
			return parseNavDoc(reader, resolvePath(opfDir, item.Href))
		}
	}
	for _, item := range p.Manifest.Items {
		if item.MediaType == "application/x-dtbncx+xml" {
			return parseNCX(reader, resolvePath(opfDir, item.Href))
		}
	}
	return []domain.Chapter{}, nil
}

func parseNCX(reader *zip.Reader, name string) ([]domain.Chapter, error) {
	var doc ncx
	if err := decodeXML(reader, name, &doc); err != nil {
		return nil, err
	}
	chapters := make([]domain.Chapter, 0, len(doc.NavPoints))
	flattenNavPoints(doc.NavPoints, &chapters)
	return chapters, nil
}

func flattenNavPoints(points []navPoint, out *[]domain.Chapter) {
	for _, point := range points {
		*out = append(*out, domain.Chapter{
			ID:    point.ID,
			Title: normalizeSpace(point.Label),
			Href:  point.Src.Value,
		})
		flattenNavPoints(point.Children, out)
	}
}

// parseNavDoc walks the XHTML nav document collecting anchor entries in
// document order.
func parseNavDoc(reader *zip.Reader, name string) ([]domain.Chapter, error) {
	file, err := openFile(reader, name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	doc, err := html.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parse nav document %q: %w", name, err)
	}

	nav := findTOCNav(doc)
	if nav == nil {
		return []domain.Chapter{}, nil
	}

	chapters := make([]domain.Chapter, 0)
	index := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			chapter := domain.Chapter{
				ID:    fmt.Sprintf("toc-%d", index),
				Title: normalizeSpace(textContent(n)),
				Href:  attr(n, "href"),
			}
			index++
			chapters = append(chapters, chapter)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(nav)
	return chapters, nil
}

// findTOCNav returns the <nav> marked epub:type="toc", or the first <nav>
// when none is marked.
func findTOCNav(doc *html.Node) *html.Node {
	var first, toc *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "nav" {
			if first == nil {
				first = n
			}
			if attr(n, "epub:type") == "toc" && toc == nil {
				toc = n
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	if toc != nil {
		return toc
	}
	return first
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func resolvePath(dir, href string) string {
	if dir == "." || dir == "" {
		return href
	}
	return path.Join(dir, href)
}

func openFile(reader *zip.Reader, name string) (io.ReadCloser, error) {
	for _, file := range reader.File {
		if file.Name == name {
			rc, err := file.Open()
			if err != nil {
				return nil, fmt.Errorf("open %q: %w", name, err)
			}
			return rc, nil
		}
	}
	return nil, fmt.Errorf("epub entry %q not found", name)
}

func decodeXML(reader *zip.Reader, name string, v any) error {
	file, err := openFile(reader, name)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := xml.NewDecoder(file).Decode(v); err != nil {
		return fmt.Errorf("parse %q: %w", name, err)
	}
	return nil
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
