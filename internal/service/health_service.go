package service

import (
	"context"
	"sort"

	"biogenie-go/internal/apperr"
	"biogenie-go/internal/repository"
	"biogenie-go/pkg/log"
	"biogenie-go/pkg/retry"
)

// Probe 检查一个依赖是否可用。
type Probe func(ctx context.Context) error

// HealthReport 是健康检查的返回结构。
type HealthReport struct {
	Status     string            `json:"status"`
	IndexReady bool              `json:"index_ready"`
	Checks     map[string]string `json:"checks,omitempty"`
}

// HealthService 定义了存活与就绪检查。
type HealthService interface {
	// Summary 返回服务状态与索引是否已导入。
	Summary(ctx context.Context) HealthReport
	// Ready 对每个依赖做有界重试，任一失败时返回 apperr.ErrTransient。
	Ready(ctx context.Context) (HealthReport, error)
}

type healthService struct {
	chunkRepo repository.ChunkRepository
	probes    map[string]Probe
	policy    retry.Policy
}

// NewHealthService 创建一个新的 HealthService 实例。
func NewHealthService(chunkRepo repository.ChunkRepository, probes map[string]Probe, policy retry.Policy) HealthService {
	return &healthService{chunkRepo: chunkRepo, probes: probes, policy: policy}
}

func (s *healthService) indexReady(ctx context.Context) (bool, error) {
	var total int64
	err := retry.Do(ctx, s.policy, func(ctx context.Context, _ int) error {
		n, err := s.chunkRepo.Count(ctx)
		total = n
		return err
	})
	return total > 0, err
}

func (s *healthService) Summary(ctx context.Context) HealthReport {
	ready, err := s.indexReady(ctx)
	if err != nil {
		log.Warnf("[HealthService] 统计分块数量失败: %v", err)
	}
	return HealthReport{Status: "ok", IndexReady: ready}
}

func (s *healthService) Ready(ctx context.Context) (HealthReport, error) {
	report := HealthReport{Status: "ok", Checks: make(map[string]string)}

	names := make([]string, 0, len(s.probes))
	for name := range s.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	var failed []string
	for _, name := range names {
		probe := s.probes[name]
		err := retry.Do(ctx, s.policy, func(ctx context.Context, attempt int) error {
			err := probe(ctx)
			if err != nil {
				log.Warnf("[HealthService] %s 第 %d 次检查失败: %v", name, attempt, err)
			}
			return err
		})
		if err != nil {
			report.Checks[name] = err.Error()
			failed = append(failed, name)
			continue
		}
		report.Checks[name] = "ok"
	}

	ready, err := s.indexReady(ctx)
	report.IndexReady = ready
	if err != nil {
		report.Checks["chunks"] = err.Error()
		failed = append(failed, "chunks")
	} else {
		report.Checks["chunks"] = "ok"
	}

	if len(failed) > 0 {
		report.Status = "unavailable"
		return report, apperr.Transient("readiness", &probeError{failed: failed})
	}
	return report, nil
}

type probeError struct {
	failed []string
}

func (e *probeError) Error() string {
	out := "dependencies unavailable:"
	for _, f := range e.failed {
		out += " " + f
	}
	return out
}
