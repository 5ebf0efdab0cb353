// internal/workers/claims/fetch-weather/handler.go
package fetchweather

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	apperrors "crop-claims/internal/common/errors"
	"crop-claims/internal/common/logger"
	"crop-claims/internal/common/metrics"
	"crop-claims/internal/common/weatherxm"
	"crop-claims/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "fetch-weather"
)

// StationClient is the subset of the WeatherXM API the collector needs.
type StationClient interface {
	StationsNear(ctx context.Context, lat, lon float64, radiusMeters int) ([]weatherxm.Station, error)
	LatestReading(ctx context.Context, stationID string) (*weatherxm.LatestReading, error)
}

type Handler struct {
	config       *Config
	stations     StationClient
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, stations StationClient, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		stations:     stations,
		errorHandler: apperrors.NewErrorHandler(log),
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errorHandler.HandleJobError(context.Background(), client, job,
			apperrors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err)).WithStage(models.StageWeather))
		return
	}

	output, err := h.Execute(context.Background(), &input)
	if err != nil {
		h.errorHandler.HandleJobError(context.Background(), client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

// Execute returns the latest reading of the nearest station. Only invalid
// coordinates are an error; every upstream failure yields the configured
// fallback observation.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if !validCoordinates(input.Latitude, input.Longitude) {
		return nil, apperrors.NewInvalidCoordinatesError(input.Latitude, input.Longitude).WithStage(models.StageWeather)
	}

	stations, err := h.stationsNear(ctx, input)
	if err != nil {
		return h.fallback(ReasonDiscoveryFailed, err), nil
	}
	if len(stations) == 0 {
		return h.fallback(ReasonNoStations, nil), nil
	}

	station := stations[0]
	reading, err := h.latestReading(ctx, station.ID)
	if err != nil {
		return h.fallback(ReasonReadingFailed, err), nil
	}

	obs, ok := toObservation(station, reading)
	if !ok {
		return h.fallback(ReasonReadingMalformed, fmt.Errorf("station %s returned an incomplete observation", station.ID)), nil
	}

	h.logger.Debug("station observation collected", map[string]interface{}{
		"stationId": station.ID,
		"rainfall":  obs.RainfallMM,
	})

	return &Output{
		Observation: obs,
		Source:      models.WeatherSourceStation,
		StationID:   station.ID,
	}, nil
}

func (h *Handler) stationsNear(ctx context.Context, input *Input) ([]weatherxm.Station, error) {
	callCtx, cancel := context.WithTimeout(ctx, h.config.CallTimeout)
	defer cancel()
	return h.stations.StationsNear(callCtx, input.Latitude, input.Longitude, h.config.RadiusMeters)
}

func (h *Handler) latestReading(ctx context.Context, stationID string) (*weatherxm.LatestReading, error) {
	callCtx, cancel := context.WithTimeout(ctx, h.config.CallTimeout)
	defer cancel()
	return h.stations.LatestReading(callCtx, stationID)
}

func (h *Handler) fallback(reason string, cause error) *Output {
	fields := map[string]interface{}{"reason": reason}
	if cause != nil {
		fields["error"] = cause.Error()
	}
	h.logger.Warn("using fallback weather observation", fields)
	metrics.WeatherFallbacks.WithLabelValues(reason).Inc()

	return &Output{
		Observation:    h.config.Fallback,
		Source:         models.WeatherSourceFallback,
		FallbackReason: reason,
	}
}

func validCoordinates(lat, lng float64) bool {
	for _, v := range []float64{lat, lng} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func toObservation(station weatherxm.Station, reading *weatherxm.LatestReading) (models.WeatherObservation, bool) {
	if reading == nil || reading.Observation == nil {
		return models.WeatherObservation{}, false
	}
	o := reading.Observation
	if o.PrecipitationAccumulated == nil || o.Temperature == nil || o.Humidity == nil || o.WindSpeed == nil {
		return models.WeatherObservation{}, false
	}

	name := station.Name
	if name == "" {
		name = station.ID
	}
	return models.WeatherObservation{
		RainfallMM:   *o.PrecipitationAccumulated,
		TemperatureC: *o.Temperature,
		HumidityPct:  *o.Humidity,
		WindSpeed:    *o.WindSpeed,
		Description: fmt.Sprintf("Station %s reports %.1f mm accumulated rainfall, %.1f C, %.0f%% humidity and %.1f m/s wind",
			name, *o.PrecipitationAccumulated, *o.Temperature, *o.Humidity, *o.WindSpeed),
	}, true
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
