package llm

// CompileDocumentToolName is the single tool exposed to the model.
const CompileDocumentToolName = "compile_document"

// GetDocumentTools returns the tool list advertised to the backend.
func GetDocumentTools() []Tool {
	return []Tool{
		{
			Type: "function",
			Function: Function{
				Name:        CompileDocumentToolName,
				Description: "Compiles a Typst markup document and shows the rendered pages to the user, together with a downloadable PDF. Use it whenever the user asks to create or change a document.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"code": map[string]interface{}{
							"type":        "string",
							"description": "The complete Typst source of the document",
						},
						"description": map[string]interface{}{
							"type":        "string",
							"description": "One short sentence describing what the document is",
						},
					},
					"required": []string{"code", "description"},
				},
			},
		},
	}
}
