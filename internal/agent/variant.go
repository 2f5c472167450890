// Package agent routes user questions to specialist assistant variants.
//
// Every conversation starts in triage. Each incoming query is classified to
// pick the variant best suited to answer it; the active variant only changes
// when classification says so, so a handoff is an explicit, observable event
// rather than free-form model behavior.
package agent

import "strings"

// Variant identifies one assistant specialization.
type Variant string

const (
	// Triage is the start state before any specialist has been selected.
	Triage Variant = "triage"

	// General handles broad Amazon USA selling questions.
	General Variant = "general"

	// Logistics handles shipping, customs and fulfillment questions.
	Logistics Variant = "logistics"

	// Marketing handles listing optimization and advertising questions.
	Marketing Variant = "marketing"

	// Onboarding welcomes new users and collects their profile.
	Onboarding Variant = "onboarding"
)

// specialists are the variants a query can be routed to. Triage itself never
// answers.
var specialists = []Variant{General, Logistics, Marketing, Onboarding}

// Valid reports whether v names a routable specialist.
func (v Variant) Valid() bool {
	for _, s := range specialists {
		if v == s {
			return true
		}
	}
	return false
}

// parseVariant maps a classifier label to a specialist variant.
func parseVariant(s string) (Variant, bool) {
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	if v.Valid() {
		return v, true
	}
	return "", false
}

// generalPrompt mirrors the original Amazon Seller Expert instructions.
const generalPrompt = `Eres un experto en ayudar a vendedores mexicanos a expandirse al mercado de Amazon USA.

Proporciona información clara, precisa y útil sobre:
- Cómo registrarse como vendedor en Amazon USA
- Requisitos legales y fiscales
- Estrategias de envío y logística
- Optimización de listados de productos
- Estrategias de precios y promociones
- Servicio al cliente para compradores estadounidenses
- Herramientas y recursos recomendados

Sé amable, profesional y proporciona ejemplos concretos cuando sea posible.
Si no conoces la respuesta a algo, admítelo honestamente en lugar de inventar información.`

const logisticsPrompt = `Eres un experto en logística y envíos para vendedores mexicanos en Amazon USA.

Proporciona información detallada sobre:
- Opciones de envío desde México a USA
- Fulfillment by Amazon (FBA) vs. envío propio
- Costos de envío y almacenamiento
- Trámites aduaneros y documentación necesaria
- Mejores prácticas para embalaje y etiquetado
- Solución de problemas comunes de logística

Sé amable, profesional y proporciona ejemplos concretos cuando sea posible.`

const marketingPrompt = `Eres un experto en marketing y optimización de listados para vendedores mexicanos en Amazon USA.

Proporciona información detallada sobre:
- Optimización de títulos, bullets y descripciones
- Estrategias de palabras clave
- Fotografía de productos
- A+ Content y Brand Store
- PPC y publicidad en Amazon
- Promociones y cupones
- Estrategias para mejorar reseñas

Sé amable, profesional y proporciona ejemplos concretos cuando sea posible.`

const onboardingPrompt = `Tu vas a ayudar a que los nuevos usuarios se sientan cómodos de usar Exbordia.

Tu objetivo principal es recabar información de los usuarios haciéndoles algunas preguntas:
- ¿Cuál es tu nombre?
- ¿En qué industria estás? (ejemplo, textil, alimentos, cosméticos, etc)
- ¿Ya has vendido en Estados Unidos?
- ¿Ya tienes cuenta de Amazon en México?
- ¿Aproximadamente cuántos productos vas a vender?
- ¿Me puedes compartir un link a alguno de tus productos en Amazon?

No debes de obligar al usuario a que te conteste todas las preguntas. Si sientes
que el usuario ya no se siente cómodo, responde sus dudas como un asistente general.`

// systemPrompts maps each specialist to its instructions.
var systemPrompts = map[Variant]string{
	General:    generalPrompt,
	Logistics:  logisticsPrompt,
	Marketing:  marketingPrompt,
	Onboarding: onboardingPrompt,
}

// SystemPrompt returns the instructions for a specialist variant.
// Unroutable variants fall back to the general prompt.
func SystemPrompt(v Variant) string {
	if p, ok := systemPrompts[v]; ok {
		return p
	}
	return generalPrompt
}
