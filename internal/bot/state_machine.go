package bot

import "crossarb/internal/models"

// ValidTransitions определяет допустимые переходы статуса группы.
// Любой другой переход - ошибка программирования, reconcile его не выполнит.
var ValidTransitions = map[string][]string{
	models.GroupPending: {
		models.GroupPartiallyFilled,
		models.GroupFilled,
		models.GroupImbalanced,
		models.GroupCanceling,
		models.GroupFailed,
	},
	models.GroupPartiallyFilled: {
		models.GroupFilled,
		models.GroupImbalanced,
		models.GroupCanceling,
		models.GroupFailed,
	},
	models.GroupImbalanced: {
		models.GroupPartiallyFilled, // корректирующий ордер вернул ноги в допуск
		models.GroupFilled,
		models.GroupCanceling,
		models.GroupFailed,
	},
	models.GroupCanceling: {
		models.GroupFilled, // rehedge довёл ноги до полного объёма
		models.GroupCanceled,
		models.GroupFailed,
	},
	// Терминальные статусы: переходов нет
	models.GroupFilled:   {},
	models.GroupCanceled: {},
	models.GroupFailed:   {},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true для статусов, из которых нет переходов.
// Терминальная группа освобождает резерв капитала и слот пары.
func IsTerminal(s string) bool {
	return s == models.GroupFilled || s == models.GroupCanceled || s == models.GroupFailed
}

// IsActive возвращает true если группа ещё управляется reconcile-циклом
func IsActive(s string) bool {
	return !IsTerminal(s)
}

// StatusInfo возвращает описание статуса для API и логов
func StatusInfo(s string) string {
	switch s {
	case models.GroupPending:
		return "Ноги отправлены, исполнение не подтверждено"
	case models.GroupPartiallyFilled:
		return "Частичное исполнение, ноги в пределах допуска"
	case models.GroupImbalanced:
		return "Ноги разошлись сверх допуска, идёт корректировка"
	case models.GroupFilled:
		return "Все ноги исполнены полностью"
	case models.GroupCanceling:
		return "Отмена остатка по таймауту"
	case models.GroupCanceled:
		return "Остаток отменён"
	case models.GroupFailed:
		return "Отказ площадки, требуется вмешательство"
	default:
		return "Неизвестный статус"
	}
}
