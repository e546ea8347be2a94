package ingestion

import (
	"net/url"
	"path"
	"strings"
)

// InferredMetadata holds the product area and doc type inferred from a
// documentation origin. Metadata carried in the source row takes precedence
// over inferred values.
type InferredMetadata struct {
	// Section is the Flare product area (ftso, fdc, fassets, network, ...).
	Section string
	// DocType classifies the documentation kind (overview, guide, reference, tutorial, api).
	DocType string
}

// sectionAliases maps path segments seen in dev.flare.network and the
// flare-foundation docs repository to a canonical section label.
var sectionAliases = map[string]string{
	"ftso":                 "ftso",
	"ftsov2":               "ftso",
	"scaling":              "ftso",
	"fdc":                  "fdc",
	"state-connector":      "fdc",
	"fassets":              "fassets",
	"fasset":               "fassets",
	"network":              "network",
	"infra":                "network",
	"run-node":             "network",
	"validators":           "network",
	"tech":                 "network",
	"wallets":              "wallets",
	"tokenomics":           "tokenomics",
	"flr":                  "tokenomics",
	"wnat":                 "tokenomics",
	"staking":              "tokenomics",
	"governance":           "governance",
	"smart-accounts":       "smart-accounts",
	"flare-smart-accounts": "smart-accounts",
}

// docTypeSegments maps path segments to a doc type. The deepest match wins.
var docTypeSegments = map[string]string{
	"overview":           "overview",
	"introduction":       "overview",
	"intro":              "overview",
	"guides":             "guide",
	"guide":              "guide",
	"how-to":             "guide",
	"getting-started":    "tutorial",
	"tutorials":          "tutorial",
	"tutorial":           "tutorial",
	"reference":          "reference",
	"solidity-reference": "reference",
	"api":                "api",
	"api-reference":      "api",
	"apis":               "api",
}

// InferMetadata inspects a documentation origin (URL, repository path or
// bare file name) and returns best-effort metadata. Unknown origins yield
// section "general" and doc type "reference".
//
// Supported origin shapes:
//
//	https://dev.flare.network/{section}/{...}
//	docs/{section}/{...}/{page}.mdx
//	{section}-{page}.md
func InferMetadata(origin string) InferredMetadata {
	m := InferredMetadata{
		Section: "general",
		DocType: "reference",
	}

	p := strings.ToLower(origin)
	if parsed, err := url.Parse(p); err == nil && parsed.Host != "" {
		p = parsed.Path
	}
	p = strings.TrimSuffix(p, path.Ext(p))
	segments := trimSegments(p)
	if len(segments) == 0 {
		return m
	}

	inferSection(segments, &m)
	inferDocType(segments, &m)
	return m
}

// inferSection takes the first segment (or dash-separated prefix of a bare
// file name) that names a known section.
func inferSection(segments []string, m *InferredMetadata) {
	for _, seg := range segments {
		if s, ok := sectionAliases[seg]; ok {
			m.Section = s
			return
		}
	}
	last := segments[len(segments)-1]
	for _, part := range strings.Split(last, "-") {
		if s, ok := sectionAliases[part]; ok {
			m.Section = s
			return
		}
	}
}

func inferDocType(segments []string, m *InferredMetadata) {
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if t, ok := docTypeSegments[seg]; ok {
			m.DocType = t
			return
		}
		// Numbered pages such as "1-getting-started" are common in the docs tree.
		if j := strings.IndexByte(seg, '-'); j > 0 && isDigits(seg[:j]) {
			if t, ok := docTypeSegments[seg[j+1:]]; ok {
				m.DocType = t
				return
			}
		}
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// trimSegments splits a path into non-empty segments.
func trimSegments(p string) []string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s != "" && s != "." {
			out = append(out, s)
		}
	}
	return out
}
