package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/replay/internal/audio"
	"github.com/MarcoPoloResearchLab/replay/internal/auth"
	"github.com/MarcoPoloResearchLab/replay/internal/config"
	"github.com/MarcoPoloResearchLab/replay/internal/editor"
	"github.com/MarcoPoloResearchLab/replay/internal/logging"
	"github.com/MarcoPoloResearchLab/replay/internal/recording"
	"github.com/MarcoPoloResearchLab/replay/internal/server"
	"github.com/MarcoPoloResearchLab/replay/internal/session"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	recordingStore, closeStore, err := openStore(appConfig, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	device := audio.NewRemoteDevice(appConfig.AudioCaptureEnabled)
	player := audio.NewRemotePlayer()
	buffer := editor.NewBuffer("")
	realtime := server.NewRealtimeDispatcher()

	facade, err := session.NewFacade(session.Config{
		Store:          recordingStore,
		IDProvider:     recording.NewUUIDProvider(),
		Device:         device,
		Player:         player,
		AcquireTimeout: appConfig.AcquireTimeout,
		Options: session.Options{
			PauseOnUserInteraction: appConfig.PauseOnUserInteraction,
			EnableAudioSync:        appConfig.EnableAudioSync,
			TickInterval:           appConfig.TickInterval,
		},
		Observer: realtime.Observe,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer facade.Close()

	buffer.OnUserChange(facade.OnEditorChange)
	facade.OnEditorMount(buffer)

	var validator server.SessionValidator
	if appConfig.AuthEnabled() {
		sessionValidator, validatorErr := auth.NewSessionValidator(auth.SessionValidatorConfig{
			SigningSecret: []byte(appConfig.AuthSigningSecret),
			Issuer:        appConfig.AuthIssuer,
			CookieName:    appConfig.AuthCookieName,
		})
		if validatorErr != nil {
			return validatorErr
		}
		validator = sessionValidator
	} else {
		logger.Warn("auth.signing_secret not set; session routes are unauthenticated")
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Session:        facade,
		Editor:         buffer,
		Device:         device,
		Player:         player,
		Realtime:       realtime,
		Validator:      validator,
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("store_driver", appConfig.StoreDriver),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server stopping")
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
