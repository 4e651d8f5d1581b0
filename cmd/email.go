package main

import (
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/cohouse-dinner/game-registration/api"
	"github.com/cohouse-dinner/game-registration/config"
	"github.com/cohouse-dinner/game-registration/mail"
)

// createEmailSender logs emails locally and sends them through SES in PROD.
func createEmailSender(awsCfg aws.Config, cfg config.Config, logger *slog.Logger) mail.Sender {
	if cfg.Env() == api.LOCAL {
		return mail.NewLogSender(logger)
	}

	return mail.NewSESSender(sesv2.NewFromConfig(awsCfg))
}
