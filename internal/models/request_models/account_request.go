package request_models

type PurchaseRequest struct {
	Credits   int64  `json:"credits" binding:"required,gt=0"`
	Reference string `json:"reference" binding:"required,max=128"`
}

type ChangeTierRequest struct {
	Tier string `json:"tier" binding:"required,oneof=free pro plus max"`
}

type HistoryQuery struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}
