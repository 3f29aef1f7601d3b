package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/example/campus-dispatch/internal/lifecycle"
	"github.com/example/campus-dispatch/internal/models"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.auth.Register(r.Context(), in.Email, in.Name, in.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	token, u, err := s.auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": u})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.auth.VerifyEmail(r.Context(), in.Email, in.Code); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Kind       models.Kind   `json:"kind"`
		Pickup     string        `json:"pickup"`
		Dropoff    string        `json:"dropoff"`
		PickupLoc  *models.Coord `json:"pickup_loc"`
		DropoffLoc *models.Coord `json:"dropoff_loc"`
		Notes      string        `json:"notes"`
		Count      int           `json:"count"`
		Fee        float64       `json:"fee"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.engine.Request(r.Context(), userID(r.Context()), lifecycle.RequestInput{
		Kind:       in.Kind,
		Pickup:     in.Pickup,
		Dropoff:    in.Dropoff,
		PickupLoc:  in.PickupLoc,
		DropoffLoc: in.DropoffLoc,
		Notes:      in.Notes,
		Count:      in.Count,
		Fee:        in.Fee,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleListAvailable(w http.ResponseWriter, r *http.Request) {
	orders, err := s.engine.ListAvailable(r.Context(), userID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	s.writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.engine.Get(r.Context(), mux.Vars(r)["id"], userID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	o, err := s.engine.Accept(r.Context(), mux.Vars(r)["id"], userID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status models.Status `json:"status"`
		Tip    float64       `json:"tip"`
		Loc    *models.Coord `json:"loc"`
		Note   string        `json:"note"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.engine.Advance(r.Context(), mux.Vars(r)["id"], userID(r.Context()), in.Status, in.Tip, in.Loc, in.Note)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.engine.Cancel(r.Context(), mux.Vars(r)["id"], userID(r.Context()), in.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	events, err := s.engine.History(r.Context(), mux.Vars(r)["id"], userID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []models.StatusEvent{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleRecordLocation(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Lat      float64 `json:"lat"`
		Lon      float64 `json:"lon"`
		Accuracy float64 `json:"accuracy"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	sample, err := s.location.Record(r.Context(), userID(r.Context()), mux.Vars(r)["id"], in.Lat, in.Lon, in.Accuracy)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sample)
}

func (s *Server) handleLatestLocation(w http.ResponseWriter, r *http.Request) {
	sample, err := s.location.Latest(r.Context(), userID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sample)
}

func (s *Server) handleLocationHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	samples, err := s.location.History(r.Context(), userID(r.Context()), mux.Vars(r)["id"], limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if samples == nil {
		samples = []models.LocationSample{}
	}
	s.writeJSON(w, http.StatusOK, samples)
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Score   int    `json:"score"`
		Comment string `json:"comment"`
	}
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	rt, err := s.ratings.Rate(r.Context(), userID(r.Context()), mux.Vars(r)["id"], in.Score, in.Comment)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rt)
}
