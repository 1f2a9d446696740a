package security

import (
	"bytes"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// ContentInspection compares what an upload claims to be with its bytes.
// It is advisory: a mismatch is recorded with the scan, it is not a verdict.
type ContentInspection struct {
	Extension    string `json:"extension,omitempty"`
	DeclaredMIME string `json:"declared_mime,omitempty"`
	DetectedMIME string `json:"detected_mime"`
	Mismatch     bool   `json:"mismatch"`
	Reason       string `json:"reason,omitempty"`
}

// Magic byte signatures for common upload types
// Maps lowercase extension to possible magic byte prefixes
var magicBytes = map[string][][]byte{
	".jpg":  {{0xFF, 0xD8, 0xFF}},
	".jpeg": {{0xFF, 0xD8, 0xFF}},
	".png":  {{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	".gif":  {{0x47, 0x49, 0x46, 0x38, 0x37, 0x61}, {0x47, 0x49, 0x46, 0x38, 0x39, 0x61}}, // GIF87a & GIF89a
	".webp": {{0x52, 0x49, 0x46, 0x46}},                                                   // RIFF header
	".pdf":  {{0x25, 0x50, 0x44, 0x46}},                                                   // %PDF
	".doc":  {{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}},                           // OLE Compound Document
	".docx": {{0x50, 0x4B, 0x03, 0x04}},                                                   // ZIP (PK..)
	".pptx": {{0x50, 0x4B, 0x03, 0x04}},
	".xlsx": {{0x50, 0x4B, 0x03, 0x04}},
	".zip":  {{0x50, 0x4B, 0x03, 0x04}},
	".mp3":  {{0x49, 0x44, 0x33}, {0xFF, 0xFB}}, // ID3 / MPEG frame
	".mp4":  {},                                 // ftyp box is at offset 4, rely on MIME detection
	".txt":  {},
}

// executable headers
var executableMagic = [][]byte{
	{0x4D, 0x5A},             // MZ (PE)
	{0x7F, 0x45, 0x4C, 0x46}, // ELF
	{0xCF, 0xFA, 0xED, 0xFE}, // Mach-O
}

// InspectContent checks the file's bytes against its extension and declared MIME type
func InspectContent(filename string, data []byte, declaredType string) ContentInspection {
	result := ContentInspection{
		Extension:    strings.ToLower(filepath.Ext(filename)),
		DeclaredMIME: normalizeMIME(declaredType),
		DetectedMIME: normalizeMIME(http.DetectContentType(data)),
	}

	for _, sig := range executableMagic {
		if bytes.HasPrefix(data, sig) {
			result.Mismatch = true
			result.Reason = "executable content"
			return result
		}
	}

	if result.Extension != "" && !validateMagicBytes(result.Extension, data) {
		result.Mismatch = true
		result.Reason = "file content does not match extension " + result.Extension
		return result
	}

	if !compatibleMIME(result.DeclaredMIME, result.DetectedMIME) {
		result.Mismatch = true
		result.Reason = "declared type " + result.DeclaredMIME + " but content looks like " + result.DetectedMIME
	}

	return result
}

// validateMagicBytes checks if file content starts with expected magic bytes.
// Unknown extensions and extensions without signatures pass.
func validateMagicBytes(ext string, data []byte) bool {
	signatures, ok := magicBytes[ext]
	if !ok || len(signatures) == 0 {
		return true
	}

	for _, sig := range signatures {
		if bytes.HasPrefix(data, sig) {
			return true
		}
	}
	return false
}

// compatibleMIME is lenient: sniffing only knows a handful of types and
// falls back to octet-stream or text/plain for most others.
func compatibleMIME(declared, detected string) bool {
	if declared == "" || declared == detected {
		return true
	}
	switch detected {
	case "application/octet-stream", "text/plain":
		return true
	case "application/zip":
		return strings.Contains(declared, "openxmlformats") || strings.Contains(declared, "zip")
	}
	return strings.SplitN(declared, "/", 2)[0] == strings.SplitN(detected, "/", 2)[0]
}

func normalizeMIME(v string) string {
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return mt
}
