// Package rpc exposes a Backend over JSON-over-HTTP and provides the matching
// client. Every call is POST /rpc/{method} with a JSON params object; the
// caller identity travels in the X-Finex-Principal header.
package rpc

import (
	"encoding/json"

	"finex/internal/core"
)

const (
	// PrincipalHeader carries the principal the backend acts for.
	PrincipalHeader = "X-Finex-Principal"

	rpcPrefix    = "/rpc/"
	maxBodyBytes = 8 << 20 // a 5MB receipt grows by a third in base64
)

// Method names.
const (
	MethodAddCategory                = "addCategory"
	MethodUpdateCategory             = "updateCategory"
	MethodDeleteCategory             = "deleteCategory"
	MethodGetCategory                = "getCategory"
	MethodGetCategories              = "getCategories"
	MethodGetCategoriesByType        = "getCategoriesByType"
	MethodGetCategoriesSortedByColor = "getCategoriesSortedByColor"
	MethodAddTransaction             = "addTransaction"
	MethodUpdateTransaction          = "updateTransaction"
	MethodDeleteTransaction          = "deleteTransaction"
	MethodGetTransaction             = "getTransaction"
	MethodGetTransactions            = "getTransactions"
	MethodGetTransactionsByCategory  = "getTransactionsByCategory"
	MethodGetTransactionsByType      = "getTransactionsByType"
	MethodSearchTransactions         = "searchTransactions"
	MethodUploadReceipt              = "uploadReceipt"
	MethodGetReceipt                 = "getReceipt"
	MethodDeleteReceipt              = "deleteReceipt"
	MethodGetCashflowInsights        = "getCashflowInsights"
	MethodGetCallerUserProfile       = "getCallerUserProfile"
	MethodSaveCallerUserProfile      = "saveCallerUserProfile"
	MethodGetUserProfile             = "getUserProfile"
	MethodGetCallerUserRole          = "getCallerUserRole"
	MethodAssignCallerUserRole       = "assignCallerUserRole"
	MethodIsCallerAdmin              = "isCallerAdmin"
)

type envelope struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

type categoryDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Color string `json:"color"`
	Icon  string `json:"icon,omitempty"`
}

type transactionDTO struct {
	ID         string `json:"id"`
	CategoryID string `json:"categoryId"`
	Type       string `json:"type"`
	Date       int64  `json:"date"` // unix nanoseconds
	Note       string `json:"note,omitempty"`
	ReceiptID  string `json:"receiptId,omitempty"`
	Amount     int64  `json:"amount"`
}

type pageDTO[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

type profileDTO struct {
	Name string `json:"name"`
}

type insightsDTO struct {
	AverageMonthlyIncome               int64  `json:"averageMonthlyIncome"`
	AverageMonthlyExpense              int64  `json:"averageMonthlyExpense"`
	MonthOverMonthIncomeChange         int64  `json:"monthOverMonthIncomeChange"`
	MonthOverMonthExpenseChange        int64  `json:"monthOverMonthExpenseChange"`
	EndOfMonthBalanceForecast          int64  `json:"endOfMonthBalanceForecast"`
	LargestExpenseCategoryCurrentMonth string `json:"largestExpenseCategoryCurrentMonth,omitempty"`
	HealthIndicator                    string `json:"healthIndicator"`
}

type (
	idParams struct {
		ID string `json:"id"`
	}
	pageParams struct {
		Page int `json:"page"`
		Size int `json:"size"`
	}
	categoryPageParams struct {
		CategoryID string `json:"categoryId"`
		Page       int    `json:"page"`
		Size       int    `json:"size"`
	}
	typePageParams struct {
		Type string `json:"type"`
		Page int    `json:"page"`
		Size int    `json:"size"`
	}
	searchParams struct {
		Term string `json:"term"`
		Page int    `json:"page"`
		Size int    `json:"size"`
	}
	receiptParams struct {
		ID   string `json:"id"`
		Data []byte `json:"data"`
	}
	userParams struct {
		User string `json:"user"`
	}
	assignRoleParams struct {
		User string `json:"user"`
		Role string `json:"role"`
	}
)

func toCategoryDTO(c core.Category) categoryDTO {
	return categoryDTO{ID: c.ID, Name: c.Name, Type: string(c.Type), Color: c.Color, Icon: c.Icon}
}

func (d categoryDTO) toCore() core.Category {
	return core.Category{ID: d.ID, Name: d.Name, Type: core.CategoryType(d.Type), Color: d.Color, Icon: d.Icon}
}

func toTransactionDTO(t core.Transaction) transactionDTO {
	var date int64
	if !t.Date.IsZero() {
		date = core.ToNanos(t.Date)
	}
	return transactionDTO{
		ID:         t.ID,
		CategoryID: t.CategoryID,
		Type:       string(t.Type),
		Date:       date,
		Note:       t.Note,
		ReceiptID:  t.ReceiptID,
		Amount:     t.Amount.Amount,
	}
}

func (d transactionDTO) toCore() core.Transaction {
	t := core.Transaction{
		ID:         d.ID,
		CategoryID: d.CategoryID,
		Type:       core.CategoryType(d.Type),
		Note:       d.Note,
		ReceiptID:  d.ReceiptID,
		Amount:     core.Money{Amount: d.Amount},
	}
	// zero stays zero so validation still rejects a missing date
	if d.Date != 0 {
		t.Date = core.FromNanos(d.Date)
	}
	return t
}

func mapSlice[A, B any](in []A, f func(A) B) []B {
	out := make([]B, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}

func toPageDTO[A, B any](p core.Page[A], f func(A) B) pageDTO[B] {
	return pageDTO[B]{Items: mapSlice(p.Items, f), Total: p.Total, Page: p.Page, PageSize: p.PageSize}
}

func fromPageDTO[A, B any](p pageDTO[A], f func(A) B) core.Page[B] {
	return core.Page[B]{Items: mapSlice(p.Items, f), Total: p.Total, Page: p.Page, PageSize: p.PageSize}
}

func toInsightsDTO(i core.CashflowInsights) insightsDTO {
	return insightsDTO{
		AverageMonthlyIncome:               i.AverageMonthlyIncome.Amount,
		AverageMonthlyExpense:              i.AverageMonthlyExpense.Amount,
		MonthOverMonthIncomeChange:         i.MonthOverMonthIncomeChange.Amount,
		MonthOverMonthExpenseChange:        i.MonthOverMonthExpenseChange.Amount,
		EndOfMonthBalanceForecast:          i.EndOfMonthBalanceForecast.Amount,
		LargestExpenseCategoryCurrentMonth: i.LargestExpenseCategoryCurrentMonth,
		HealthIndicator:                    string(i.HealthIndicator),
	}
}

func (d insightsDTO) toCore() core.CashflowInsights {
	return core.CashflowInsights{
		AverageMonthlyIncome:               core.Money{Amount: d.AverageMonthlyIncome},
		AverageMonthlyExpense:              core.Money{Amount: d.AverageMonthlyExpense},
		MonthOverMonthIncomeChange:         core.Money{Amount: d.MonthOverMonthIncomeChange},
		MonthOverMonthExpenseChange:        core.Money{Amount: d.MonthOverMonthExpenseChange},
		EndOfMonthBalanceForecast:          core.Money{Amount: d.EndOfMonthBalanceForecast},
		LargestExpenseCategoryCurrentMonth: d.LargestExpenseCategoryCurrentMonth,
		HealthIndicator:                    core.HealthIndicator(d.HealthIndicator),
	}
}
