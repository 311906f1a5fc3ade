package dto

type ProductFilters struct {
	IsActive    *bool  `json:"is_active,omitempty"`
	SearchQuery string `json:"search,omitempty"`     // name or code
	SortBy      string `json:"sort_by,omitempty"`    // name, price, quantity, created_at
	SortOrder   string `json:"sort_order,omitempty"` // asc, desc
	Page        int    `json:"page"`
	PageSize    int    `json:"page_size"`
}
