package sqlchatui

import "embed"

// TemplateFS contains the embedded HTML templates used for rendering the chat widget. These templates
// are organized in a directory structure that separates layouts, pages, and partial views.
//
//go:embed templates/*
var TemplateFS embed.FS

// StaticFS contains the embedded static assets, the input-area script and the stylesheet.
//
//go:embed static/*
var StaticFS embed.FS
