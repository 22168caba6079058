package handlers

import (
	"fmt"
	"net/http"

	"challengetracker/models"
	"challengetracker/services"
)

type CatalogHandler struct {
	base
}

func NewCatalogHandler(d Deps) *CatalogHandler {
	return &CatalogHandler{base{d}}
}

// iconChange reads the icon fields of a category or task package form. On
// create any given upload or text becomes the icon. The returned close func
// is never nil.
func iconChange(r *http.Request, create bool) (services.IconChange, func(), error) {
	upload, closeFile, err := formFile(r, "icon_file")
	if err != nil {
		return services.IconChange{}, closeFile, err
	}
	text := r.FormValue("icon")
	if create {
		return services.NewIcon(text, upload), closeFile, nil
	}
	return services.IconChange{
		Action: services.ParseIconAction(r.FormValue("icon_action")),
		Text:   text,
		Upload: upload,
	}, closeFile, nil
}

func (h *CatalogHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := services.ListCategories(r.Context(), h.DB)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	data := viewData(r)
	data["Categories"] = categories
	h.render(w, r, "categories", data)
}

func (h *CatalogHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.parseUpload(w, r); err != nil {
		h.fail(w, r, err, "/categories", "")
		return
	}
	icon, closeFile, err := iconChange(r, true)
	defer closeFile()
	if err != nil {
		h.fail(w, r, err, "/categories", "")
		return
	}

	in := services.CategoryInput{Title: r.FormValue("title"), Description: r.FormValue("description")}
	cat, err := services.CreateCategory(r.Context(), h.DB, h.Files, in, icon)
	if err != nil {
		h.fail(w, r, err, "/categories", "")
		return
	}
	success(w, r, "/categories", fmt.Sprintf("Kategorie %s angelegt", cat.Title))
}

func (h *CatalogHandler) EditCategoryPage(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		redirectFlash(w, r, "/categories", "error", "Ungültige Kategorie")
		return
	}
	cat, err := services.GetCategory(r.Context(), h.DB, id)
	if err != nil {
		h.fail(w, r, err, "/categories", "")
		return
	}
	data := viewData(r)
	data["Category"] = cat
	h.render(w, r, "category-edit", data)
}

func (h *CatalogHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		redirectFlash(w, r, "/categories", "error", "Ungültige Kategorie")
		return
	}
	back := fmt.Sprintf("/categories/%d/edit", id)
	if err := h.parseUpload(w, r); err != nil {
		h.fail(w, r, err, back, "")
		return
	}
	icon, closeFile, err := iconChange(r, false)
	defer closeFile()
	if err != nil {
		h.fail(w, r, err, back, "")
		return
	}

	in := services.CategoryInput{Title: r.FormValue("title"), Description: r.FormValue("description")}
	_, err = services.UpdateCategory(r.Context(), h.DB, h.Files, id, in, icon)
	if err := h.committed(r, err); err != nil {
		h.fail(w, r, err, back, "/categories")
		return
	}
	success(w, r, "/categories", "Kategorie gespeichert")
}

func (h *CatalogHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		redirectFlash(w, r, "/categories", "error", "Ungültige Kategorie")
		return
	}
	err := services.DeleteCategory(r.Context(), h.DB, h.Files, id)
	if err := h.committed(r, err); err != nil {
		h.fail(w, r, err, "/categories", "")
		return
	}
	success(w, r, "/categories", "Kategorie gelöscht")
}

func (h *CatalogHandler) TaskPackages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := services.TaskPackageFilter{CategoryID: parseUint(q.Get("category_id")), Search: q.Get("q")}
	packages, err := services.ListTaskPackages(r.Context(), h.DB, filter)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	categories, err := services.ListCategories(r.Context(), h.DB)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	data := viewData(r)
	data["TaskPackages"] = packages
	data["Categories"] = categories
	data["CategoryID"] = filter.CategoryID
	data["SelectedCategory"] = filter.CategoryID
	data["Search"] = filter.Search
	data["TaskPackage"] = (*models.TaskPackage)(nil)
	h.render(w, r, "aufgabenpakete", data)
}

func taskPackageInput(r *http.Request) (services.TaskPackageInput, error) {
	start, err := formDate(r, "start_date", "Startdatum")
	if err != nil {
		return services.TaskPackageInput{}, err
	}
	end, err := formDate(r, "end_date", "Enddatum")
	if err != nil {
		return services.TaskPackageInput{}, err
	}
	return services.TaskPackageInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		CategoryID:  formUint(r, "category_id"),
		StartDate:   start,
		EndDate:     end,
	}, nil
}

func (h *CatalogHandler) CreateTaskPackage(w http.ResponseWriter, r *http.Request) {
	if err := h.parseUpload(w, r); err != nil {
		h.fail(w, r, err, "/aufgabenpakete", "")
		return
	}
	in, err := taskPackageInput(r)
	if err != nil {
		h.fail(w, r, err, "/aufgabenpakete", "")
		return
	}
	icon, closeFile, err := iconChange(r, true)
	defer closeFile()
	if err != nil {
		h.fail(w, r, err, "/aufgabenpakete", "")
		return
	}

	pkg, err := services.CreateTaskPackage(r.Context(), h.DB, h.Files, in, icon)
	if err != nil {
		h.fail(w, r, err, "/aufgabenpakete", "")
		return
	}
	success(w, r, "/aufgabenpakete", fmt.Sprintf("Aufgabenpaket %s angelegt", pkg.Title))
}

func (h *CatalogHandler) EditTaskPackagePage(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		redirectFlash(w, r, "/aufgabenpakete", "error", "Ungültiges Aufgabenpaket")
		return
	}
	pkg, err := services.GetTaskPackage(r.Context(), h.DB, id)
	if err != nil {
		h.fail(w, r, err, "/aufgabenpakete", "")
		return
	}
	categories, err := services.ListCategories(r.Context(), h.DB)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	data := viewData(r)
	data["TaskPackage"] = pkg
	data["Categories"] = categories
	data["SelectedCategory"] = pkg.CategoryID
	h.render(w, r, "aufgabenpaket-edit", data)
}

func (h *CatalogHandler) UpdateTaskPackage(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		redirectFlash(w, r, "/aufgabenpakete", "error", "Ungültiges Aufgabenpaket")
		return
	}
	back := fmt.Sprintf("/aufgabenpakete/%d/edit", id)
	if err := h.parseUpload(w, r); err != nil {
		h.fail(w, r, err, back, "")
		return
	}
	in, err := taskPackageInput(r)
	if err != nil {
		h.fail(w, r, err, back, "")
		return
	}
	icon, closeFile, err := iconChange(r, false)
	defer closeFile()
	if err != nil {
		h.fail(w, r, err, back, "")
		return
	}

	_, err = services.UpdateTaskPackage(r.Context(), h.DB, h.Files, id, in, icon)
	if err := h.committed(r, err); err != nil {
		h.fail(w, r, err, back, "/aufgabenpakete")
		return
	}
	success(w, r, "/aufgabenpakete", "Aufgabenpaket gespeichert")
}

func (h *CatalogHandler) DeleteTaskPackage(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		redirectFlash(w, r, "/aufgabenpakete", "error", "Ungültiges Aufgabenpaket")
		return
	}
	err := services.DeleteTaskPackage(r.Context(), h.DB, h.Files, id)
	if err := h.committed(r, err); err != nil {
		h.fail(w, r, err, "/aufgabenpakete", "")
		return
	}
	success(w, r, "/aufgabenpakete", "Aufgabenpaket gelöscht")
}
