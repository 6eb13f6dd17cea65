package domain

// DefaultRecordCount — размер страницы по умолчанию в таблице заказов.
const DefaultRecordCount = 20

// Pagination хранит состояние постраничного вывода.
type Pagination struct {
	CurrentPage  int
	RecordCount  int
	TotalPages   int
	TotalRecords int
}

// DefaultPagination возвращает первую страницу с размером по умолчанию.
func DefaultPagination() Pagination {
	return Pagination{CurrentPage: 1, RecordCount: DefaultRecordCount}
}

// Recalculate пересчитывает TotalPages по инварианту
// totalPages = ceil(totalRecords / recordCount) и зажимает текущую страницу
// в валидный диапазон.
func (p *Pagination) Recalculate(totalRecords int) {
	if p.RecordCount <= 0 {
		p.RecordCount = DefaultRecordCount
	}
	if totalRecords < 0 {
		totalRecords = 0
	}

	p.TotalRecords = totalRecords
	p.TotalPages = (totalRecords + p.RecordCount - 1) / p.RecordCount
	if p.TotalPages == 0 {
		p.TotalPages = 1
	}

	if p.CurrentPage < 1 {
		p.CurrentPage = 1
	}
	if p.CurrentPage > p.TotalPages {
		p.CurrentPage = p.TotalPages
	}
}

// Offset возвращает индекс первого элемента текущей страницы.
func (p Pagination) Offset() int {
	return (p.CurrentPage - 1) * p.RecordCount
}
