// ABOUTME: Crop recommendation, yield prediction and crop guidance handlers
// ABOUTME: Local model output is enriched by the advisor and stored per user

package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/kisanmitra/kisanmitra-gateway/internal/advisor"
	"github.com/kisanmitra/kisanmitra-gateway/internal/auth"
	"github.com/kisanmitra/kisanmitra-gateway/internal/predict"
	"github.com/kisanmitra/kisanmitra-gateway/internal/store"
)

// CropRecommendationRequest carries soil and weather readings. Pointers make
// zero an acceptable reading while still requiring the field.
type CropRecommendationRequest struct {
	Nitrogen    *float64 `json:"nitrogen" validate:"required,gte=0"`
	Phosphorus  *float64 `json:"phosphorus" validate:"required,gte=0"`
	Potassium   *float64 `json:"potassium" validate:"required,gte=0"`
	Temperature *float64 `json:"temperature" validate:"required,gte=-50,lte=60"`
	Humidity    *float64 `json:"humidity" validate:"required,gte=0,lte=100"`
	Ph          *float64 `json:"ph" validate:"required,gte=0,lte=14"`
	Rainfall    *float64 `json:"rainfall" validate:"required,gte=0"`
}

// cropPayload is what the advisor sees for a recommendation.
type cropPayload struct {
	Nitrogen    float64 `json:"Nitrogen"`
	Phosphorus  float64 `json:"Phosphorus"`
	Potassium   float64 `json:"Potassium"`
	Temperature float64 `json:"Temperature"`
	Humidity    float64 `json:"Humidity"`
	Ph          float64 `json:"Ph"`
	Rainfall    float64 `json:"Rainfall"`
	Crop        string  `json:"crop"`
}

// CropRecommendationResponse is one stored recommendation.
type CropRecommendationResponse struct {
	ID            int64              `json:"id"`
	PredictedCrop string             `json:"predicted_crop"`
	Inputs        map[string]float64 `json:"inputs"`
	Details       map[string]any     `json:"details"`
	CreatedAt     time.Time          `json:"created_at"`
}

// YieldPredictionRequest is the JSON body for POST /yield-prediction.
type YieldPredictionRequest struct {
	Year       int      `json:"year" validate:"required,gte=1900,lte=2100"`
	RainfallMM *float64 `json:"average_rain_fall_mm_per_year" validate:"required,gte=0"`
	Pesticides *float64 `json:"pesticides_tonnes" validate:"required,gte=0"`
	AvgTemp    *float64 `json:"avg_temp" validate:"required,gte=-50,lte=60"`
	Area       string   `json:"area" validate:"required,max=100"`
	Item       string   `json:"item" validate:"required,max=100"`
}

type yieldPayload struct {
	Item              string  `json:"item"`
	Area              string  `json:"area"`
	Year              int     `json:"year"`
	PredictedYield    float64 `json:"predicted_yield"`
	Unit              string  `json:"unit"`
	RainfallMMPerYear float64 `json:"rainfall_mm_per_year"`
	PesticidesTonnes  float64 `json:"pesticides_tonnes"`
	AvgTempCelsius    float64 `json:"avg_temp_celsius"`
}

// YieldPredictionResponse is one stored yield prediction.
type YieldPredictionResponse struct {
	ID             int64          `json:"id"`
	Item           string         `json:"item"`
	Area           string         `json:"area"`
	Year           int            `json:"year"`
	PredictedYield float64        `json:"predicted_yield"`
	Unit           string         `json:"unit"`
	Details        map[string]any `json:"details"`
	CreatedAt      time.Time      `json:"created_at"`
}

// FertilizerRequest is the optional fertilizer plan of a guidance request.
type FertilizerRequest struct {
	Type     string `json:"type" validate:"max=100"`
	Amount   string `json:"amount" validate:"max=100"`
	Schedule string `json:"schedule" validate:"max=200"`
}

// CropGuidanceRequest is the JSON body for POST /crop-guidance.
type CropGuidanceRequest struct {
	Crop          string             `json:"crop" validate:"required,max=100"`
	LandSize      float64            `json:"land_size" validate:"required,gt=0"`
	SoilType      string             `json:"soil_type" validate:"required,max=50"`
	Location      string             `json:"location" validate:"required,max=200"`
	Irrigation    string             `json:"irrigation" validate:"required,max=50"`
	Fertilizer    *FertilizerRequest `json:"fertilizer"`
	Equipment     string             `json:"equipment" validate:"max=200"`
	PlantingDate  string             `json:"planting_date" validate:"omitempty,datetime=2006-01-02"`
	GrowingSeason string             `json:"growing_season" validate:"max=50"`
}

// CropGuidanceResponse is one stored guidance document with its request.
type CropGuidanceResponse struct {
	ID               int64             `json:"id"`
	Crop             string            `json:"crop"`
	LandSize         float64           `json:"land_size"`
	SoilType         string            `json:"soil_type"`
	Location         string            `json:"location"`
	IrrigationMethod string            `json:"irrigation"`
	Fertilizer       *store.Fertilizer `json:"fertilizer,omitempty"`
	Equipment        string            `json:"equipment,omitempty"`
	PlantingDate     string            `json:"planting_date,omitempty"`
	GrowingSeason    string            `json:"growing_season,omitempty"`
	Guidance         map[string]any    `json:"guidance"`
	CreatedAt        time.Time         `json:"created_at"`
}

// enrich runs the advisor and writes the failure response when there is no
// structured result. It reports whether the caller may continue.
func (g *Gateway) enrich(w http.ResponseWriter, r *http.Request, topic advisor.Topic, payload any) (map[string]any, bool) {
	result, err := g.advisor.Enrich(r.Context(), topic, payload)
	if err != nil {
		if r.Context().Err() != nil {
			g.logger.Info("enrichment abandoned by client", "subject", topic.Subject)
			return nil, false
		}
		g.logger.Error("enrichment failed", "subject", topic.Subject, "error", err)
		g.sendJSONError(w, http.StatusBadGateway, "Failed to get a response from Gemini")
		return nil, false
	}
	if result.Kind == advisor.Raw {
		g.sendJSON(w, http.StatusBadGateway, map[string]string{
			"error": "Failed to parse Gemini response",
			"raw":   result.Raw,
		})
		return nil, false
	}
	return result.Fields, true
}

func (g *Gateway) handleCropRecommendation(w http.ResponseWriter, r *http.Request) {
	var req CropRecommendationRequest
	if err := decodeRequest(w, r, &req); err != nil {
		g.writeDecodeError(w, err)
		return
	}

	features := predict.CropFeatures{
		Nitrogen:    *req.Nitrogen,
		Phosphorus:  *req.Phosphorus,
		Potassium:   *req.Potassium,
		Temperature: *req.Temperature,
		Humidity:    *req.Humidity,
		Ph:          *req.Ph,
		Rainfall:    *req.Rainfall,
	}
	crop, err := g.crop.Recommend(features)
	if errors.Is(err, predict.ErrUnknownLabel) {
		g.sendJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		g.logger.Error("crop classifier failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	details, ok := g.enrich(w, r, advisor.CropTopic, cropPayload{
		Nitrogen:    features.Nitrogen,
		Phosphorus:  features.Phosphorus,
		Potassium:   features.Potassium,
		Temperature: features.Temperature,
		Humidity:    features.Humidity,
		Ph:          features.Ph,
		Rainfall:    features.Rainfall,
		Crop:        crop,
	})
	if !ok {
		return
	}

	rec := &store.CropRecommendation{
		UserID:        auth.MustFromContext(r.Context()).PrincipalID,
		PredictedCrop: crop,
		Inputs: map[string]float64{
			"nitrogen":    features.Nitrogen,
			"phosphorus":  features.Phosphorus,
			"potassium":   features.Potassium,
			"temperature": features.Temperature,
			"humidity":    features.Humidity,
			"ph":          features.Ph,
			"rainfall":    features.Rainfall,
		},
		Details: details,
	}
	if err := g.store.SaveCropRecommendation(r.Context(), rec); err != nil {
		g.logger.Error("failed to save crop recommendation", "user_id", rec.UserID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.sendJSON(w, http.StatusOK, toCropRecommendationResponse(rec))
}

func toCropRecommendationResponse(rec *store.CropRecommendation) CropRecommendationResponse {
	return CropRecommendationResponse{
		ID:            rec.ID,
		PredictedCrop: rec.PredictedCrop,
		Inputs:        rec.Inputs,
		Details:       rec.Details,
		CreatedAt:     rec.CreatedAt,
	}
}

func (g *Gateway) handleListCropRecommendations(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustFromContext(r.Context()).PrincipalID
	recs, err := g.store.ListCropRecommendations(r.Context(), userID)
	if err != nil {
		g.logger.Error("failed to list crop recommendations", "user_id", userID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	out := make([]CropRecommendationResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toCropRecommendationResponse(rec))
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"recommendations": out})
}

func (g *Gateway) handleYieldPrediction(w http.ResponseWriter, r *http.Request) {
	var req YieldPredictionRequest
	if err := decodeRequest(w, r, &req); err != nil {
		g.writeDecodeError(w, err)
		return
	}

	features := predict.YieldFeatures{
		Year:       req.Year,
		RainfallMM: *req.RainfallMM,
		Pesticides: *req.Pesticides,
		AvgTemp:    *req.AvgTemp,
		Area:       req.Area,
		Item:       req.Item,
	}
	if !g.yield.KnownItem(req.Item) {
		g.logger.Warn("yield requested for an item outside the model", "item", req.Item)
	}
	predicted := g.yield.Predict(features)

	details, ok := g.enrich(w, r, advisor.YieldTopic, yieldPayload{
		Item:              req.Item,
		Area:              req.Area,
		Year:              req.Year,
		PredictedYield:    predicted,
		Unit:              predict.YieldUnit,
		RainfallMMPerYear: features.RainfallMM,
		PesticidesTonnes:  features.Pesticides,
		AvgTempCelsius:    features.AvgTemp,
	})
	if !ok {
		return
	}

	p := &store.YieldPrediction{
		UserID:         auth.MustFromContext(r.Context()).PrincipalID,
		Item:           req.Item,
		Area:           req.Area,
		Year:           req.Year,
		PredictedYield: predicted,
		Unit:           predict.YieldUnit,
		Details:        details,
	}
	if err := g.store.SaveYieldPrediction(r.Context(), p); err != nil {
		g.logger.Error("failed to save yield prediction", "user_id", p.UserID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.sendJSON(w, http.StatusOK, toYieldPredictionResponse(p))
}

func toYieldPredictionResponse(p *store.YieldPrediction) YieldPredictionResponse {
	return YieldPredictionResponse{
		ID:             p.ID,
		Item:           p.Item,
		Area:           p.Area,
		Year:           p.Year,
		PredictedYield: p.PredictedYield,
		Unit:           p.Unit,
		Details:        p.Details,
		CreatedAt:      p.CreatedAt,
	}
}

func (g *Gateway) handleListYieldPredictions(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustFromContext(r.Context()).PrincipalID
	preds, err := g.store.ListYieldPredictions(r.Context(), userID)
	if err != nil {
		g.logger.Error("failed to list yield predictions", "user_id", userID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	out := make([]YieldPredictionResponse, 0, len(preds))
	for _, p := range preds {
		out = append(out, toYieldPredictionResponse(p))
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"predictions": out})
}

func (g *Gateway) handleCropGuidance(w http.ResponseWriter, r *http.Request) {
	var req CropGuidanceRequest
	if err := decodeRequest(w, r, &req); err != nil {
		g.writeDecodeError(w, err)
		return
	}

	guidance, ok := g.enrich(w, r, advisor.GuidanceTopic, req)
	if !ok {
		return
	}

	doc := &store.CropGuidance{
		UserID:           auth.MustFromContext(r.Context()).PrincipalID,
		CropName:         req.Crop,
		LandSize:         req.LandSize,
		SoilType:         req.SoilType,
		Location:         req.Location,
		IrrigationMethod: req.Irrigation,
		Equipment:        req.Equipment,
		PlantingDate:     req.PlantingDate,
		GrowingSeason:    req.GrowingSeason,
		Guidance:         guidance,
	}
	if req.Fertilizer != nil {
		doc.Fertilizer = &store.Fertilizer{
			Type:     req.Fertilizer.Type,
			Amount:   req.Fertilizer.Amount,
			Schedule: req.Fertilizer.Schedule,
		}
	}
	if err := g.store.SaveCropGuidance(r.Context(), doc); err != nil {
		g.logger.Error("failed to save crop guidance", "user_id", doc.UserID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.sendJSON(w, http.StatusOK, toCropGuidanceResponse(doc))
}

func toCropGuidanceResponse(doc *store.CropGuidance) CropGuidanceResponse {
	return CropGuidanceResponse{
		ID:               doc.ID,
		Crop:             doc.CropName,
		LandSize:         doc.LandSize,
		SoilType:         doc.SoilType,
		Location:         doc.Location,
		IrrigationMethod: doc.IrrigationMethod,
		Fertilizer:       doc.Fertilizer,
		Equipment:        doc.Equipment,
		PlantingDate:     doc.PlantingDate,
		GrowingSeason:    doc.GrowingSeason,
		Guidance:         doc.Guidance,
		CreatedAt:        doc.CreatedAt,
	}
}

func (g *Gateway) handleListCropGuidance(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustFromContext(r.Context()).PrincipalID
	docs, err := g.store.ListCropGuidance(r.Context(), userID)
	if err != nil {
		g.logger.Error("failed to list crop guidance", "user_id", userID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	out := make([]CropGuidanceResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toCropGuidanceResponse(doc))
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"guidance": out})
}
