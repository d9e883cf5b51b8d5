package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/pkg/queue"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/service"
)

// Processor 账务后台任务处理器：消费 webhook 提交后入队的慢工作
type Processor struct {
	billingQueue  *queue.Queue
	creditService *service.CreditService
}

func NewProcessor(billingQueue *queue.Queue, creditService *service.CreditService) *Processor {
	return &Processor{
		billingQueue:  billingQueue,
		creditService: creditService,
	}
}

// Run 阻塞消费队列直到 ctx 取消
func (p *Processor) Run(ctx context.Context) {
	log.Println("Billing worker started")
	for {
		select {
		case <-ctx.Done():
			log.Println("Billing worker stopped")
			return
		default:
		}

		task, err := p.billingQueue.Pop(ctx, 5*time.Second)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			log.Printf("Failed to pop billing task: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			continue
		}

		if err := p.Process(ctx, task); err != nil {
			log.Printf("Billing task %s failed for user %d: %v", task.Task, task.UserID, err)
		}
	}
}

// Process 处理单个任务
func (p *Processor) Process(ctx context.Context, task *queue.BillingTask) error {
	switch task.Task {
	case queue.TaskReconcile:
		report, err := p.creditService.Reconcile(task.UserID)
		if err != nil {
			return err
		}
		if report.Corrected {
			log.Printf("Post-event reconcile corrected drift for user %d (event=%s): %v",
				task.UserID, task.ExternalEventID, report.Drift)
		}
		return nil
	case queue.TaskNotifyChange:
		p.creditService.NotifyBalance(task.UserID, task.EventType)
		return nil
	default:
		return fmt.Errorf("unknown billing task %q", task.Task)
	}
}
