package service

import (
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	mimePDF       = "application/pdf"
	mimeZip       = "application/zip"
	mimeText      = "text/plain"
	mimeOctet     = "application/octet-stream"
	mimeDocx      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeXlsx      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimePptx      = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	officeVendor  = "officedocument"
	sniffHeadSize = 3072
)

// Office Open XML files are zip archives; the concrete type comes from the
// declared type's vendor string or, failing that, the file extension.
var officeByMarker = []struct {
	marker string
	mime   string
}{
	{"wordprocessingml", mimeDocx},
	{"spreadsheetml", mimeXlsx},
	{"presentationml", mimePptx},
}

var officeByExt = map[string]string{
	".docx": mimeDocx,
	".xlsx": mimeXlsx,
	".pptx": mimePptx,
}

// contentTypeResolver decides the stored content type of an upload against the allow-list.
type contentTypeResolver struct {
	allowed map[string]struct{}
}

func newContentTypeResolver(allowed []string) *contentTypeResolver {
	r := &contentTypeResolver{allowed: make(map[string]struct{}, len(allowed))}
	for _, t := range allowed {
		r.allowed[normalizeMIME(t)] = struct{}{}
	}
	return r
}

func (r *contentTypeResolver) isAllowed(t string) bool {
	_, ok := r.allowed[t]
	return ok
}

// resolve returns the content type to record, or ErrUnsupportedMediaType.
// A declared type on the allow-list wins; otherwise the leading bytes decide.
func (r *contentTypeResolver) resolve(data []byte, filename, declared string) (string, error) {
	declared = normalizeMIME(declared)
	if declared != "" && r.isAllowed(declared) {
		return declared, nil
	}

	head := data
	if len(head) > sniffHeadSize {
		head = head[:sniffHeadSize]
	}
	detected := mimetype.Detect(head)
	sniffed := normalizeMIME(detected.String())

	if r.isAllowed(sniffed) {
		return sniffed, nil
	}
	if isZip(detected) {
		if office := officeType(declared, filename); office != "" && r.isAllowed(office) {
			return office, nil
		}
	}
	if strings.HasPrefix(sniffed, "text/") && r.isAllowed(mimeText) {
		return mimeText, nil
	}
	if sniffed == mimeOctet {
		if byExt := normalizeMIME(mime.TypeByExtension(strings.ToLower(path.Ext(filename)))); byExt != "" && r.isAllowed(byExt) {
			return byExt, nil
		}
	}
	return "", ErrUnsupportedMediaType
}

// isZip is true for plain zip archives and for anything the sniffer
// classified as a zip-based format.
func isZip(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is(mimeZip) {
			return true
		}
	}
	return false
}

func officeType(declared, filename string) string {
	if strings.Contains(declared, officeVendor) {
		for _, o := range officeByMarker {
			if strings.Contains(declared, o.marker) {
				return o.mime
			}
		}
	}
	return officeByExt[strings.ToLower(path.Ext(filename))]
}

// normalizeMIME lowercases and strips parameters: "Text/Plain; charset=utf-8" -> "text/plain".
func normalizeMIME(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.ToLower(strings.TrimSpace(t))
}
