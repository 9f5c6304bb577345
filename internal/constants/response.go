package constants

// Standard Response Field Keys
const (
	ResponseFieldTotal     = "total"
	ResponseFieldPage      = "page"
	ResponseFieldPageTotal = "page_total"
	ResponseFieldData      = "data"

	ResponseFieldMessage = "message"
	ResponseFieldDetails = "details"
	ResponseFieldError   = "error"
)

// Response Format Functions
func BuildListResponse(total int64, page int, pageTotal int, data any) map[string]any {
	return map[string]any{
		ResponseFieldTotal:     total,
		ResponseFieldPage:      page,
		ResponseFieldPageTotal: pageTotal,
		ResponseFieldData:      data,
	}
}

func BuildErrorResponse(message string, details any) map[string]any {
	response := map[string]any{
		ResponseFieldMessage: message,
	}

	if details != nil {
		response[ResponseFieldDetails] = details
	}

	return response
}

func BuildSuccessResponse(message string) map[string]any {
	return map[string]any{
		ResponseFieldMessage: message,
	}
}
