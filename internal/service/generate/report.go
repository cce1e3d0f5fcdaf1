package generate

// TaskStatus 单个任务的终态
type TaskStatus string

const (
	TaskSuccess TaskStatus = "success"
	TaskFailed  TaskStatus = "failed"
	TaskSkipped TaskStatus = "skipped"
	TaskStopped TaskStatus = "stopped"
)

// RunStatus 整次运行的终态
// stopped 是用户主动停止，与 error 严格区分
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunStopped   RunStatus = "stopped"
)

// TaskResult 单个任务的运行结果
type TaskResult struct {
	Name     string     `json:"name"`
	Target   string     `json:"target"` // 图片文件名或语音占位名
	Status   TaskStatus `json:"status"`
	Message  string     `json:"message,omitempty"`
	Saved    []string   `json:"saved,omitempty"`
	Warnings []string   `json:"warnings,omitempty"`
}

// Report 一次生成运行的汇总报告
// Script 是提交成功任务后改写过的脚本全文
type Report struct {
	Status  RunStatus    `json:"status"`
	Total   int          `json:"total"`
	Success int          `json:"success"`
	Failed  int          `json:"failed"`
	Skipped int          `json:"skipped"`
	Stopped int          `json:"stopped"`
	Tasks   []TaskResult `json:"tasks"`
	Script  string       `json:"script"`
}

func (r *Report) add(result TaskResult) {
	r.Tasks = append(r.Tasks, result)
	switch result.Status {
	case TaskSuccess:
		r.Success++
	case TaskFailed:
		r.Failed++
	case TaskSkipped:
		r.Skipped++
	case TaskStopped:
		r.Stopped++
	}
}
