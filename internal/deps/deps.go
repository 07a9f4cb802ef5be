package deps

import (
	"context"
	"log/slog"
	"time"
)

// Package names one runtime dependency: the module name used for the import
// probe and the distribution name handed to pip (they differ for
// python-binance, whose module is "binance").
type Package struct {
	Module  string `mapstructure:"module"`
	Install string `mapstructure:"install"`
}

// Defaults is the fixed ordered dependency set of the trading programs.
func Defaults() []Package {
	return []Package{
		{Module: "pandas", Install: "pandas"},
		{Module: "binance", Install: "python-binance"},
		{Module: "requests", Install: "requests"},
	}
}

// Runner is the slice of interpreter operations Ensure needs.
// *interp.Interpreter satisfies it.
type Runner interface {
	CheckImport(ctx context.Context, module string) error
	Install(ctx context.Context, pkg string) error
}

// Result records the outcome for one package.
type Result struct {
	Package   Package
	Present   bool  // importable before any install ran
	Installed bool  // an install was attempted and succeeded
	Err       error // install failure; deferred, never fatal
}

// Ensure walks the ordered package list: import-check each module, install
// the distribution when the import fails, and continue regardless of install
// outcome. When every module is already importable no install command runs.
// Each package gets its own timeout budget so one slow install cannot starve
// the probes of the packages after it; timeout <= 0 means no limit.
func Ensure(ctx context.Context, r Runner, pkgs []Package, timeout time.Duration, log *slog.Logger) []Result {
	results := make([]Result, 0, len(pkgs))
	for _, pkg := range pkgs {
		pkgCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			pkgCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		res := Result{Package: pkg}
		if err := r.CheckImport(pkgCtx, pkg.Module); err == nil {
			res.Present = true
			log.Debug("dependency present", "module", pkg.Module)
			results = append(results, res)
			continue
		}
		log.Info("dependency missing, installing", "module", pkg.Module, "package", pkg.Install)
		if err := r.Install(pkgCtx, pkg.Install); err != nil {
			// Deferred: the main program will surface the missing import later.
			res.Err = err
			log.Warn("dependency install failed", "package", pkg.Install, "error", err)
		} else {
			res.Installed = true
			log.Info("dependency installed", "package", pkg.Install)
		}
		results = append(results, res)
	}
	return results
}

// Check runs import probes only, without installing anything.
func Check(ctx context.Context, r Runner, pkgs []Package) []Result {
	results := make([]Result, 0, len(pkgs))
	for _, pkg := range pkgs {
		res := Result{Package: pkg}
		res.Present = r.CheckImport(ctx, pkg.Module) == nil
		results = append(results, res)
	}
	return results
}
