package retrieval

// DiversityRanker 多样性重排：在超采样候选窗口内优先覆盖不同来源文档
type DiversityRanker struct{}

// NewDiversityRanker 创建多样性重排器
func NewDiversityRanker() *DiversityRanker {
	return &DiversityRanker{}
}

// Select 从按相似度降序排列的候选中选出最多limit条结果。
// 第一遍线性扫描只接受尚未出现过的来源文档的分块；若名额未满，
// 再按相似度顺序补充已被跳过的分块（允许同文档重复）。
// 输出保持候选的相对相似度顺序，长度不超过limit。
// 多样性只在超采样窗口内生效，不做全局再平衡。
func (r *DiversityRanker) Select(candidates []Match, limit int) []Match {
	if limit <= 0 || len(candidates) == 0 {
		return nil
	}
	if limit > len(candidates) {
		limit = len(candidates)
	}

	selected := make([]bool, len(candidates))
	seenDocs := make(map[string]bool)
	count := 0

	// 第一遍：每个文档取排名最高的分块
	for i, m := range candidates {
		if count == limit {
			break
		}
		if seenDocs[m.Payload.DocumentID] {
			continue
		}
		seenDocs[m.Payload.DocumentID] = true
		selected[i] = true
		count++
	}

	// 第二遍：按排名顺序补满剩余名额
	for i := range candidates {
		if count == limit {
			break
		}
		if selected[i] {
			continue
		}
		selected[i] = true
		count++
	}

	// 按原始相似度顺序输出
	result := make([]Match, 0, count)
	for i, m := range candidates {
		if selected[i] {
			result = append(result, m)
		}
	}
	return result
}
