package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"smarthome/internal/clock"
	"smarthome/internal/logger"
	"smarthome/internal/models"
	"smarthome/internal/repository"
	"smarthome/internal/stream"

	"github.com/google/uuid"
)

const deviceKeyPrefix = "dk_"

// TelemetryService accepts raw power readings pushed by devices. Readings are
// recorded as "data" events and never change appliance state.
type TelemetryService struct {
	appliances repository.ApplianceRepo
	events     repository.EventRepo
	devices    repository.DeviceRepo
	access     *accessResolver
	notifier   stream.Notifier
	clock      clock.Clock
	log        *logger.Logger
}

func NewTelemetryService(repos *repository.Repository, notifier stream.Notifier, clk clock.Clock, log *logger.Logger) *TelemetryService {
	return &TelemetryService{
		appliances: repos.Appliances,
		events:     repos.Events,
		devices:    repos.Devices,
		access:     newAccessResolver(repos),
		notifier:   notifier,
		clock:      clk,
		log:        log,
	}
}

func hashDeviceKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// ProvisionKey issues a new device key for an appliance. The plaintext is
// returned once and only its hash is stored.
func (s *TelemetryService) ProvisionKey(ctx context.Context, actorID, applianceID int64) (ProvisionedKey, error) {
	if _, _, err := s.access.require(ctx, actorID, applianceID, CapManage); err != nil {
		return ProvisionedKey{}, err
	}
	key := deviceKeyPrefix + strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	if err := s.devices.SaveKey(ctx, applianceID, hashDeviceKey(key)); err != nil {
		return ProvisionedKey{}, storeErr("provision device key", err)
	}
	return ProvisionedKey{ApplianceID: applianceID, Key: key}, nil
}

// Authenticate resolves a device key to its appliance.
func (s *TelemetryService) Authenticate(ctx context.Context, key string) (int64, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, deniedf("device key required")
	}
	id, err := s.devices.ApplianceForKey(ctx, hashDeviceKey(key))
	if errors.Is(err, repository.ErrNotFound) {
		return 0, deniedf("unknown device key")
	}
	if err != nil {
		return 0, storeErr("device key", err)
	}
	return id, nil
}

// Ingest records one power reading for an appliance.
func (s *TelemetryService) Ingest(ctx context.Context, applianceID int64, powerUsage float64) (models.ApplianceEvent, error) {
	if err := validatePower(&powerUsage); err != nil {
		return models.ApplianceEvent{}, err
	}
	a, err := s.appliances.Get(ctx, applianceID)
	if err != nil {
		return models.ApplianceEvent{}, storeErr("appliance", err)
	}
	ev, err := s.events.Append(ctx, models.ApplianceEvent{
		ApplianceID: applianceID,
		Status:      models.StatusData,
		PowerUsage:  powerUsage,
		Source:      models.SourceDevice,
		RecordedAt:  s.clock.Now(),
	})
	if err != nil {
		return models.ApplianceEvent{}, storeErr("record telemetry", err)
	}
	s.notifier.Publish(models.StreamMessage{
		Kind:       models.KindTelemetry,
		HomeID:     a.HomeID,
		Event:      ev,
		OccurredAt: ev.RecordedAt,
	})
	return ev, nil
}
