package metrics

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(NewService),
)

func RegisterHandler(e *echo.Echo, svc *Service) {
	e.GET("/metrics", echo.WrapHandler(svc.Handler()))
}
