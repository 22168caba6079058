package handlers

import (
	"net/http"

	"challengetracker/services"
)

type TeamHandler struct {
	base
}

func NewTeamHandler(d Deps) *TeamHandler {
	return &TeamHandler{base{d}}
}

// List shows the teams of the selected school year, the active one by
// default. schuljahr_id=0 lists all.
func (h *TeamHandler) List(w http.ResponseWriter, r *http.Request) {
	years, err := services.ListSchoolYears(r.Context(), h.DB)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	var yearID uint
	if raw, ok := r.URL.Query()["schuljahr_id"]; ok && len(raw) > 0 {
		yearID = parseUint(raw[0])
	} else {
		for _, y := range years {
			if y.Active {
				yearID = y.ID
			}
		}
	}

	teams, err := services.ListTeams(r.Context(), h.DB, yearID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	data := viewData(r)
	data["Teams"] = teams
	data["SchoolYears"] = years
	data["SchoolYearID"] = yearID
	h.render(w, r, "teams", data)
}

func (h *TeamHandler) Detail(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		redirectFlash(w, r, "/teams", "error", "Ungültiges Team")
		return
	}
	team, err := services.GetTeam(r.Context(), h.DB, id)
	if err != nil {
		h.fail(w, r, err, "/teams", "")
		return
	}
	data := viewData(r)
	data["Team"] = team
	h.render(w, r, "team-detail", data)
}
