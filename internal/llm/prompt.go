package llm

import (
	"strings"

	"github.com/efddrsn/cartorio-AI/internal/schema"
)

// SystemPrompt frames the task for registry documents.
const SystemPrompt = "Você é um assistente especializado em extrair informações estruturadas de textos de registros imobiliários."

// BuildPrompt composes the extraction request for text under s.
func BuildPrompt(s *schema.Schema, text string) Prompt {
	rules := []string{
		SystemPrompt,
		"Responda SOMENTE com um objeto JSON contendo exatamente as chaves listadas, sem chaves adicionais.",
		"Cada valor deve ser copiado literalmente do texto de origem, como string.",
		"Se a informação não estiver presente no texto, use null.",
		"Nunca invente, deduza ou complete valores que não estejam escritos no texto.",
	}

	var b strings.Builder
	b.WriteString("Extraia as seguintes informações do texto abaixo e retorne em formato JSON.\n\n")
	b.WriteString("Campos:\n")
	b.WriteString(s.Describe())
	b.WriteString("\nTexto:\n")
	b.WriteString(text)

	return Prompt{
		System:     strings.Join(rules, " "),
		User:       b.String(),
		SchemaName: s.Name(),
		Schema:     s.JSONSchema(),
	}
}
