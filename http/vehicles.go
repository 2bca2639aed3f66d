package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/yourorg/inventory-api/internal/canon"
	"github.com/yourorg/inventory-api/internal/store"
)

type VehicleRequest struct {
	VIN         string `json:"vin"`
	StockNumber string `json:"stockNumber"`
	Year        int    `json:"year,omitempty"`
	Make        string `json:"make,omitempty"`
	Model       string `json:"model,omitempty"`
	Trim        string `json:"trim,omitempty"`
}

func (b VehicleRequest) input(storeID string) (store.VehicleInput, error) {
	vin := canon.NormalizeVIN(b.VIN)
	stock := canon.NormalizeStockNumber(b.StockNumber)
	var errs []error
	if err := canon.ValidateVIN(vin); err != nil {
		errs = append(errs, err)
	}
	if stock == "" {
		errs = append(errs, errors.New("stockNumber is required"))
	}
	if b.Year != 0 && (b.Year < 1900 || b.Year > 2100) {
		errs = append(errs, errors.New("year out of range"))
	}
	return store.VehicleInput{
		StoreID:     storeID,
		VIN:         vin,
		StockNumber: stock,
		Year:        b.Year,
		Make:        strings.TrimSpace(b.Make),
		Model:       strings.TrimSpace(b.Model),
		Trim:        strings.TrimSpace(b.Trim),
	}, errors.Join(errs...)
}

func registerVehicles(r chi.Router, d InventoryDeps) {
	r.Post("/stores/{storeID}/vehicles", func(w http.ResponseWriter, req *http.Request) {
		in, ok := readVehicle(w, req, d, chi.URLParam(req, "storeID"))
		if !ok {
			return
		}
		created, err := d.Store.CreateVehicle(req.Context(), in)
		if err != nil {
			storeError(w, req, d.Log, err, "vehicle")
			return
		}
		render.Status(req, http.StatusCreated)
		render.JSON(w, req, created)
	})

	r.Get("/stores/{storeID}/vehicles", func(w http.ResponseWriter, req *http.Request) {
		list, err := d.Store.ListVehicles(req.Context(), chi.URLParam(req, "storeID"))
		if err != nil {
			storeError(w, req, d.Log, err, "vehicle")
			return
		}
		render.JSON(w, req, map[string]any{"count": len(list), "vehicles": list})
	})

	r.Get("/vehicles/{vehicleID}", func(w http.ResponseWriter, req *http.Request) {
		v, err := d.Store.GetVehicle(req.Context(), chi.URLParam(req, "vehicleID"))
		if err != nil {
			storeError(w, req, d.Log, err, "vehicle")
			return
		}
		render.JSON(w, req, v)
	})

	r.Put("/vehicles/{vehicleID}", func(w http.ResponseWriter, req *http.Request) {
		in, ok := readVehicle(w, req, d, "")
		if !ok {
			return
		}
		updated, err := d.Store.UpdateVehicle(req.Context(), chi.URLParam(req, "vehicleID"), in)
		if err != nil {
			storeError(w, req, d.Log, err, "vehicle")
			return
		}
		render.JSON(w, req, updated)
	})

	r.Delete("/vehicles/{vehicleID}", func(w http.ResponseWriter, req *http.Request) {
		images, err := d.Store.DeleteVehicle(req.Context(), chi.URLParam(req, "vehicleID"))
		if err != nil {
			storeError(w, req, d.Log, err, "vehicle")
			return
		}
		d.removeObjects(req.Context(), images...)
		w.WriteHeader(http.StatusNoContent)
	})
}

func readVehicle(w http.ResponseWriter, req *http.Request, d InventoryDeps, storeID string) (store.VehicleInput, bool) {
	var body VehicleRequest
	if err := decodeJSON(w, req, &body); err != nil {
		writeError(w, req, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return store.VehicleInput{}, false
	}
	in, err := body.input(storeID)
	if err != nil {
		code := "VALIDATION_ERROR"
		if errors.Is(err, canon.ErrInvalidVIN) {
			code = "INVALID_VIN"
		}
		writeError(w, req, http.StatusBadRequest, code, err.Error())
		return in, false
	}
	if !canon.CheckDigitValid(in.VIN) {
		// non-North American VINs legitimately fail the check digit
		d.Log.Info("vin check digit mismatch", zap.String("vin", in.VIN))
	}
	return in, true
}
