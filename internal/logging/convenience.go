package logging

// Convenience top-level functions for the hottest categories, mirroring
// Get(category).Info(...) without requiring callers to hold a *Logger.

func Scheduler(format string, args ...interface{})      { Get(CategoryScheduler).Info(format, args...) }
func SchedulerDebug(format string, args ...interface{})  { Get(CategoryScheduler).Debug(format, args...) }
func SchedulerWarn(format string, args ...interface{})   { Get(CategoryScheduler).Warn(format, args...) }

func Orchestrator(format string, args ...interface{})     { Get(CategoryOrchestrator).Info(format, args...) }
func OrchestratorDebug(format string, args ...interface{}) { Get(CategoryOrchestrator).Debug(format, args...) }
func OrchestratorWarn(format string, args ...interface{})  { Get(CategoryOrchestrator).Warn(format, args...) }

func FileIndex(format string, args ...interface{})      { Get(CategoryFileIndex).Info(format, args...) }
func FileIndexDebug(format string, args ...interface{}) { Get(CategoryFileIndex).Debug(format, args...) }

func Group(format string, args ...interface{})      { Get(CategoryGroupAssembly).Info(format, args...) }
func GroupDebug(format string, args ...interface{}) { Get(CategoryGroupAssembly).Debug(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

func Housekeeping(format string, args ...interface{}) { Get(CategoryHousekeeping).Info(format, args...) }

func Executor(format string, args ...interface{})      { Get(CategoryExecutor).Info(format, args...) }
func ExecutorDebug(format string, args ...interface{}) { Get(CategoryExecutor).Debug(format, args...) }
