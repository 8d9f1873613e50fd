package api

import (
	"github.com/sis061/pilltime-sub000/internal"
	"github.com/sis061/pilltime-sub000/internal/service"
)

type App interface {
	Logger() internal.Logger
	Medicines() *service.MedicineService
	Indicator() *service.IndicatorService
}

type appEnv struct {
	logger    internal.Logger
	medicines *service.MedicineService
	indicator *service.IndicatorService
}

func NewApp(logger internal.Logger, medicines *service.MedicineService, indicator *service.IndicatorService) App {
	return &appEnv{logger: logger, medicines: medicines, indicator: indicator}
}

func (a *appEnv) Logger() internal.Logger                { return a.logger }
func (a *appEnv) Medicines() *service.MedicineService    { return a.medicines }
func (a *appEnv) Indicator() *service.IndicatorService   { return a.indicator }
