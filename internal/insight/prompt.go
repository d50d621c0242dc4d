package insight

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/soenlit/health-buddy/internal/aggregator"
)

var promptTemplate = template.Must(template.New("insight").Parse(`你是一个毒舌但专业的健康助手 Bobo。以下是用户最近 {{.Days}} 天的健康数据（{{.Since}} 至 {{.Until}}）：
{{.StatsJSON}}

数据说明：
- activity: 按天求和的指标，daily_avg 为有数据日的日均值，weekly_total 为窗口总量，max_day 为单日最高。
- vitals: 全部样本的 avg / min / max。
- sleep: 每晚睡眠时长（小时），avg_hours 为平均值，min_hours 为最短一晚。

请根据这些数据给出一份简短的分析报告（200字以内）。
要求：
1. 风格要专业、简洁、带点幽默或微毒舌，结论必须基于数据。
2. 如果数据太差（比如步数太少、睡眠不足），直接点出来，别客气。
3. 最后给一条下周的硬核建议。
`))

type promptData struct {
	Days      int
	Since     string
	Until     string
	StatsJSON string
}

// RenderPrompt builds the model prompt. The same stats always yield the same prompt.
func RenderPrompt(st *aggregator.Stats) (string, error) {
	statsJSON, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal stats: %w", err)
	}

	data := promptData{
		Days:      int(st.Until.Sub(st.Since).Hours()/24 + 0.5),
		Since:     st.Since.Format("2006-01-02"),
		Until:     st.Until.Format("2006-01-02"),
		StatsJSON: string(statsJSON),
	}

	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}
