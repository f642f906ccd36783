package sitemap

import "encoding/xml"

// urlEntry is a <url> element inside a urlset document.
type urlEntry struct {
	Loc string `xml:"loc"`
}

// urlsetDoc is a sitemap document listing page URLs directly.
type urlsetDoc struct {
	XMLName xml.Name   `xml:"urlset"`
	URLs    []urlEntry `xml:"url"`
}

// indexEntry is a <sitemap> element inside a sitemapindex document.
type indexEntry struct {
	Loc string `xml:"loc"`
}

// indexDoc is a sitemap index listing child sitemap documents.
type indexDoc struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []indexEntry `xml:"sitemap"`
}
