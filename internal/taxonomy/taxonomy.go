// Package taxonomy defines the closed category set used to label
// documentation chunks and to scope retrieval.
//
// The set is fixed: categories are Spanish-language topics covering the
// Amazon cross-border seller domain, plus the Uncategorized sentinel for
// content that fits none of them. Every category written to storage must come
// from this set.
package taxonomy

import "strings"

// Uncategorized is the sentinel label for content that matches no category.
// It is valid in storage but never suggested to the classifier.
const Uncategorized = "uncategorized"

// categories lists every real category in canonical form and display order.
var categories = []string{
	"Logística",
	"Regulaciones y Aduanas",
	"Marketing y Publicidad",
	"Ventas y Conversión",
	"Finanzas y Costos",
	"Estrategia de Negocio",
	"Legales y Compliance",
	"Operaciones y Gestión de Inventario",
	"Optimización de Listados",
	"Customer Service y Devoluciones",
	"Amazon FBA y FBM",
	"Análisis de Competencia",
	"Expansión a Otros Mercados",
	"Amazon Seller Central",
	"Reembolsos y Cargos Ocultos",
}

// descriptions gives the classifier a short scope note per category.
var descriptions = map[string]string{
	"Logística":                           "Envíos, fulfillment, almacenamiento y tiempos de entrega.",
	"Regulaciones y Aduanas":              "Requisitos de importación, documentación, fracciones arancelarias.",
	"Marketing y Publicidad":              "Amazon Ads, estrategias de PPC, branding en Amazon.",
	"Ventas y Conversión":                 "Cómo mejorar listados, obtener más reviews, Buy Box.",
	"Finanzas y Costos":                   "Tarifas de Amazon, impuestos, costos ocultos, márgenes de ganancia.",
	"Estrategia de Negocio":               "Modelos de venta (FBA vs FBM), expansión, nichos rentables.",
	"Legales y Compliance":                "Propiedad intelectual, restricciones de productos, términos de servicio.",
	"Operaciones y Gestión de Inventario": "Stock, reabastecimiento, proveedores, gestión con Amazon.",
	"Optimización de Listados":            "Keywords, títulos, bullet points, imágenes, descripciones.",
	"Customer Service y Devoluciones":     "Manejo de clientes, disputas, reembolsos y reputación.",
	"Amazon FBA y FBM":                    "Comparación entre modelos, ventajas y desventajas.",
	"Análisis de Competencia":             "Herramientas para investigar a otros vendedores.",
	"Expansión a Otros Mercados":          "Cómo escalar de Amazon US a otros marketplaces.",
	"Amazon Seller Central":               "Manejo de la plataforma, reports, troubleshooting.",
	"Reembolsos y Cargos Ocultos":         "Cómo reclamar cobros indebidos en Amazon.",
}

// lookup maps lowercased names to canonical form for validation.
var lookup = func() map[string]string {
	m := make(map[string]string, len(categories)+1)
	for _, c := range categories {
		m[strings.ToLower(c)] = c
	}
	m[Uncategorized] = Uncategorized
	return m
}()

// All returns the real categories in canonical order.
// The returned slice is a copy; callers may modify it.
func All() []string {
	out := make([]string, len(categories))
	copy(out, categories)
	return out
}

// Description returns the scope note for a canonical category name.
func Description(category string) string {
	return descriptions[category]
}

// Valid reports whether name is a known category (including Uncategorized).
// Matching is case-insensitive.
func Valid(name string) bool {
	_, ok := lookup[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Normalize returns the canonical form of name and whether it is valid.
func Normalize(name string) (string, bool) {
	c, ok := lookup[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// Sanitize validates a candidate label list against the taxonomy.
// Unknown labels are dropped and survivors are canonicalized and deduplicated.
// An empty result collapses to [Uncategorized].
func Sanitize(candidates []string) []string {
	seen := make(map[string]bool, len(candidates))
	var valid []string
	for _, c := range candidates {
		canonical, ok := Normalize(c)
		if !ok || seen[canonical] {
			continue
		}
		seen[canonical] = true
		valid = append(valid, canonical)
	}
	if len(valid) == 0 {
		return []string{Uncategorized}
	}
	return valid
}

// PromptList renders "- Name: description" lines for classifier prompts.
func PromptList() string {
	var b strings.Builder
	for _, c := range categories {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteString(": ")
		b.WriteString(descriptions[c])
		b.WriteString("\n")
	}
	return b.String()
}
