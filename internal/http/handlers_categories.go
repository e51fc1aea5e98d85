package http

import (
	"net/http"
	"slices"
	"strings"

	"finex/internal/core"
)

type categoryGroup struct {
	Title      string
	Type       core.CategoryType
	Categories []core.Category
}

type categoryListView struct {
	Groups []categoryGroup
}

type categoryFormView struct {
	Editing  bool
	Action   string
	Category core.Category
	Palette  []string
}

// paletteWith returns the preset palette, extended with color when a
// category carries one from outside it.
func paletteWith(color string) []string {
	color = strings.ToLower(color)
	if color == "" || slices.Contains(CategoryPalette, color) {
		return CategoryPalette
	}
	return append(slices.Clone(CategoryPalette), color)
}

func (s *Server) categoryList(r *http.Request) (categoryListView, error) {
	cats, err := s.backend.GetCategoriesByType(r.Context())
	if err != nil {
		return categoryListView{}, err
	}
	income := categoryGroup{Title: "Kategori Pemasukan", Type: core.Income}
	expense := categoryGroup{Title: "Kategori Pengeluaran", Type: core.Expense}
	for _, c := range cats {
		if c.Type == core.Income {
			income.Categories = append(income.Categories, c)
		} else {
			expense.Categories = append(expense.Categories, c)
		}
	}
	return categoryListView{Groups: []categoryGroup{income, expense}}, nil
}

func (s *Server) handleCategoriesPage(w http.ResponseWriter, r *http.Request, v *viewer) {
	list, err := s.categoryList(r)
	if err != nil {
		s.fail(w, r, err, "Gagal memuat kategori")
		return
	}
	s.renderPage(w, r, http.StatusOK, "categories", pageData{
		Title:    "Kategori",
		UserName: v.Profile.Name,
		Content:  list,
	})
}

func (s *Server) handleCategoryList(w http.ResponseWriter, r *http.Request, _ *viewer) {
	list, err := s.categoryList(r)
	if err != nil {
		s.fail(w, r, err, "Gagal memuat kategori")
		return
	}
	s.writePartial(w, r, NewHTMXResponse(), "category_list", list)
}

func (s *Server) handleNewCategoryForm(w http.ResponseWriter, r *http.Request, _ *viewer) {
	c := core.Category{
		Type:  parseCategoryType(r.URL.Query().Get("type")),
		Color: CategoryPalette[0],
	}
	s.writePartial(w, r, NewHTMXResponse(), "category_form", categoryFormView{
		Action:   "/categories",
		Category: c,
		Palette:  CategoryPalette,
	})
}

func (s *Server) handleEditCategoryForm(w http.ResponseWriter, r *http.Request, _ *viewer) {
	c, err := s.backend.GetCategory(r.Context(), r.PathValue("id"))
	if err == nil && c == nil {
		err = core.ErrNotFound
	}
	if err != nil {
		s.fail(w, r, err, "Gagal memuat kategori")
		return
	}
	s.writePartial(w, r, NewHTMXResponse(), "category_form", categoryFormView{
		Editing:  true,
		Action:   "/categories/" + c.ID,
		Category: *c,
		Palette:  paletteWith(c.Color),
	})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request, _ *viewer) {
	s.saveCategory(w, r, core.NewCategoryID(), false)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request, _ *viewer) {
	s.saveCategory(w, r, r.PathValue("id"), true)
}

func (s *Server) saveCategory(w http.ResponseWriter, r *http.Request, id string, update bool) {
	p, err := parseBody(r)
	if err != nil {
		BadRequestError("Format permintaan tidak valid").Write(w)
		return
	}
	c, err := ParseCategoryForm(p, id)
	if err != nil {
		s.fail(w, r, err, "Gagal menyimpan kategori")
		return
	}

	success := "Kategori berhasil ditambahkan"
	if update {
		err = s.backend.UpdateCategory(r.Context(), c)
		success = "Kategori berhasil diperbarui"
	} else {
		err = s.backend.AddCategory(r.Context(), c)
	}
	if err != nil {
		s.fail(w, r, err, "Gagal menyimpan kategori")
		return
	}

	SuccessResponse(success).
		TriggerCategoriesChanged().
		TriggerCloseDialog().
		Write(w)
}

// handleDeleteCategory removes a category. Transactions that referenced it
// stay and are shown under the fallback category name.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request, _ *viewer) {
	if err := s.backend.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err, "Gagal menghapus kategori")
		return
	}
	SuccessResponse("Kategori berhasil dihapus").
		TriggerCategoriesChanged().
		TriggerLedgerChanged().
		Write(w)
}
