package epub

import (
	"bytes"
	"encoding/xml"
	"io"
	"net/url"
	"path"
	"strings"
)

// container is META-INF/container.xml.
type container struct {
	Rootfiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

// opf is the package document.
type opf struct {
	Titles   []string `xml:"metadata>title"`
	Creators []string `xml:"metadata>creator"`
	Manifest []struct {
		ID         string `xml:"id,attr"`
		Href       string `xml:"href,attr"`
		MediaType  string `xml:"media-type,attr"`
		Properties string `xml:"properties,attr"`
	} `xml:"manifest>item"`
	Spine struct {
		Toc      string `xml:"toc,attr"`
		Itemrefs []struct {
			IDRef  string `xml:"idref,attr"`
			Linear string `xml:"linear,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// ncx is the EPUB 2 table of contents.
type ncx struct {
	Points []navPoint `xml:"navMap>navPoint"`
}

type navPoint struct {
	Label   string     `xml:"navLabel>text"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []navPoint `xml:"navPoint"`
}

// encryption is META-INF/encryption.xml.
type encryption struct {
	Data []struct {
		Method struct {
			Algorithm string `xml:"Algorithm,attr"`
		} `xml:"EncryptionMethod"`
		Ref struct {
			URI string `xml:"URI,attr"`
		} `xml:"CipherData>CipherReference"`
	} `xml:"EncryptedData"`
}

// Font obfuscation algorithms. They protect embedded fonts, not text.
var fontObfuscation = map[string]bool{
	"http://www.idpf.org/2008/embedding": true,
	"http://ns.adobe.com/pdf/enc#RC":     true,
}

// encryptsContent reports whether any encrypted resource is a content document.
func (e *encryption) encryptsContent() bool {
	for _, d := range e.Data {
		if fontObfuscation[d.Method.Algorithm] {
			continue
		}
		switch strings.ToLower(path.Ext(d.Ref.URI)) {
		case ".ttf", ".otf", ".woff", ".woff2":
			continue
		}
		return true
	}
	return false
}

func decodeXML(data []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
	return dec.Decode(v)
}

// resolve joins a reference found in the document at base with the
// reference's fragment and query removed.
func resolve(base, ref string) string {
	if i := strings.IndexAny(ref, "#?"); i >= 0 {
		ref = ref[:i]
	}
	if ref == "" {
		return ""
	}
	if unescaped, err := url.PathUnescape(ref); err == nil {
		ref = unescaped
	}
	return path.Clean(path.Join(path.Dir(base), ref))
}
