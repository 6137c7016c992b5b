package service

import "github.com/pesio-ai/be-erp-approvals/internal/repository"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxPageNumber   = 1 << 20
)

// NormalizePage applies defaults and bounds to a requested page.
func NormalizePage(p repository.Page) repository.Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	if p.Number > MaxPageNumber {
		p.Number = MaxPageNumber
	}
	return p
}
