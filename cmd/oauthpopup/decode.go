package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dropDatabas3/oauthpopup/internal/config"
	dto "github.com/dropDatabas3/oauthpopup/internal/http/dto/popup"
	popupsvc "github.com/dropDatabas3/oauthpopup/internal/http/services/popup"
	"github.com/dropDatabas3/oauthpopup/internal/observability/logger"
)

func newDecodeCmd() *cobra.Command {
	var (
		origin     string
		configPath = envOr("CONFIG_PATH", "")
	)

	cmd := &cobra.Command{
		Use:   "decode <query|url>",
		Short: "Decodifica un query de callback e imprime resultado, mensaje y plan",
		Example: `  oauthpopup decode 'status=success&shop=myshop&webhooks=ok'
  oauthpopup decode 'https://app.example.com/oauth/popup/complete?status=failure&error=callback_failed'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if origin == "" {
				origin = cfg.Popup.PublicOrigin
			}
			return runDecode(cmd.Context(), cmd.OutOrStdout(), args[0], origin, cfg)
		},
	}

	cmd.Flags().StringVar(&origin, "origin", "", "origin propio del popup (default popup.public_origin)")
	cmd.Flags().StringVarP(&configPath, "config", "c", configPath, "archivo YAML de configuración (env CONFIG_PATH)")
	return cmd
}

// runDecode pasa el query por el mismo service que atiende el endpoint.
func runDecode(ctx context.Context, w io.Writer, arg, origin string, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	q, _ := url.ParseQuery(callbackQuery(arg))

	svc := popupsvc.NewCompleteService(popupsvc.Deps{
		Config: popupsvc.Config{
			NotifyDelay:        cfg.Popup.NotifyDelay,
			CloseDelay:         cfg.Popup.CloseDelay,
			CloseWithoutOpener: cfg.CloseWithoutOpener(),
		},
	})
	out := svc.Complete(logger.ToContext(ctx, zap.NewNop()), dto.CompleteRequest{Query: q, Origin: origin})

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// callbackQuery devuelve el query crudo de arg: un query suelto ("a=1",
// "?a=1") o una URL/path pegado del navegador. El fragment nunca es parte
// del query.
func callbackQuery(arg string) string {
	arg = strings.TrimSpace(arg)
	if strings.Contains(arg, "://") || strings.HasPrefix(arg, "/") {
		if u, err := url.Parse(arg); err == nil {
			return u.RawQuery
		}
	}
	if i := strings.IndexByte(arg, '#'); i >= 0 {
		arg = arg[:i]
	}
	if i := strings.IndexByte(arg, '?'); i >= 0 {
		arg = arg[i+1:]
	}
	return arg
}
