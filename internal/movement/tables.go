package movement

import "time"

const sec = time.Second

func arm(id int, name, display, desc string, d time.Duration) Movement {
	return Movement{ID: id, Name: name, DisplayName: display, Description: desc, Kind: KindArm, Duration: d, RequiresRelax: true}
}

func fsmState(id int, name, display, desc string, d time.Duration) Movement {
	return Movement{ID: id, Name: name, DisplayName: display, Description: desc, Kind: KindFSM, Duration: d}
}

// Locomotion ids group commands: -1 basic, -2 directional, -3 rotation,
// -4 pattern, -5 balance, -6 stop.
func loco(id int, name, display, desc string, d time.Duration) Movement {
	return Movement{ID: id, Name: name, DisplayName: display, Description: desc, Kind: KindLocomotion, Duration: d}
}

// Arm gestures confirmed on hardware.
var armTable = []Movement{
	arm(1, "turn_back_wave", "Vira e Acena", "Vira para trás e acena", 4*sec),
	arm(11, "blow_kiss_with_both_hands_50hz", "Beijo Duas Mãos", "Beijo com duas mãos", 3*sec),
	arm(12, "blow_kiss_with_left_hand", "Beijo Mão Esquerda", "Beijo com mão esquerda", 3*sec),
	arm(13, "blow_kiss_with_right_hand", "Beijo Mão Direita", "Beijo com mão direita", 3*sec),
	arm(15, "both_hands_up", "Mãos Para Cima", "Duas mãos para cima", 3*sec),
	arm(17, "clamp", "Aplaudir", "Aplaudir", 3*sec),
	arm(18, "high_five_opt", "Toca Aqui", "Toca aqui / High Five", 3*sec),
	arm(19, "hug_opt", "Abraçar", "Abraçar", 3*sec),
	arm(22, "refuse", "Recusar", "Recusar / Negar", 3*sec),
	arm(23, "right_hand_up", "Mão Direita Para Cima", "Mão direita para cima", 3*sec),
	arm(24, "ultraman_ray", "Raio do Ultraman", "Raio do Ultraman", 3*sec),
	arm(25, "wave_under_head", "Acenar Baixo", "Acenar abaixo da cabeça", 3*sec),
	arm(26, "wave_above_head", "Acenar Alto", "Acenar acima da cabeça", 3*sec),
	arm(27, "shake_hand_opt", "Apertar Mão", "Apertar mão", 3*sec),
	arm(31, "extend_right_arm_forward", "Apontar", "Estender braço direito para frente", 3*sec),
	arm(32, "right_hand_on_mouth", "Mão na Boca", "Mão direita na boca", 3*sec),
	arm(33, "right_hand_on_heart", "Mão no Coração", "Mão direita no coração", 3*sec),
	arm(34, "both_hands_up_deviate_right", "Mãos Para Cima Direita", "Duas mãos para cima desviando direita", 3*sec),
	arm(35, "emphasize", "Enfatizar", "Enfatizar", 3*sec),
	{ID: RelaxID, Name: "release_arm", DisplayName: "Relaxar Braços", Description: "Liberar braços", Kind: KindArm, Duration: sec, IsRelax: true},
}

var fsmTable = []Movement{
	fsmState(0, "zero_torque", "Torque Zero", "Torque zero - estado seguro", 2*sec),
	fsmState(1, "damping", "Amortecimento", "Amortecimento - estado estável", 2*sec),
	fsmState(2, "squat", "Agachar", "Agachar - postura baixa", 3*sec),
	fsmState(3, "seat", "Sentar", "Sentar - postura sentada", 3*sec),
	fsmState(4, "get_ready", "Preparar", "Preparar - estado inicial", 2*sec),
	fsmState(200, "start", "Iniciar", "Iniciar - estado ativo", 2*sec),
	fsmState(702, "lie2standup", "Deitar para Levantar", "Deitar para levantar - transição", 5*sec),
	fsmState(706, "squat2standup", "Agachar para Levantar", "Agachar para levantar - transição", 4*sec),
}

var locomotionTable = []Movement{
	loco(-1, "damp", "Amortecimento", "Amortecimento - funciona em qualquer estado", 2*sec),
	loco(-1, "sit", "Sentar", "Sentar - postura sentada", 3*sec),
	loco(-1, "highstand", "Postura Alta", "Postura alta - postura ereta", 2*sec),
	loco(-1, "lowstand", "Postura Baixa", "Postura baixa - postura agachada", 2*sec),

	loco(-2, "move_forward", "Mover Para Frente", "Movimento para frente (vx=0.2)", 3*sec),
	loco(-2, "move_backward", "Mover Para Trás", "Movimento para trás (vx=-0.2)", 3*sec),
	loco(-2, "move_left", "Mover Para Esquerda", "Movimento lateral esquerdo (vy=0.2)", 3*sec),
	loco(-2, "move_right", "Mover Para Direita", "Movimento lateral direito (vy=-0.2)", 3*sec),

	loco(-3, "rotate_left_slow", "Rotação Esquerda Lenta", "vyaw=0.2 rad/s", 3*sec),
	loco(-3, "rotate_right_slow", "Rotação Direita Lenta", "vyaw=-0.2 rad/s", 3*sec),
	loco(-3, "rotate_left_medium", "Rotação Esquerda Média", "vyaw=0.5 rad/s", 3*sec),
	loco(-3, "rotate_right_medium", "Rotação Direita Média", "vyaw=-0.5 rad/s", 3*sec),
	loco(-3, "rotate_left_fast", "Rotação Esquerda Rápida", "vyaw=1.0 rad/s", 3*sec),
	loco(-3, "rotate_right_fast", "Rotação Direita Rápida", "vyaw=-1.0 rad/s", 3*sec),
	loco(-3, "rotate_left_max", "Rotação Esquerda Máxima", "vyaw=1.5 rad/s", 3*sec),
	loco(-3, "rotate_right_max", "Rotação Direita Máxima", "vyaw=-1.5 rad/s", 3*sec),

	loco(-4, "circular_movement", "Movimento Circular", "vx=0.1, vyaw=0.4 por 10 segundos", 10*sec),
	loco(-4, "figure_eight", "Figura 8", "Curvas alternadas", 8*sec),

	loco(-5, "balance_mode_0", "Balanceamento Modo 0", "BalanceStand modo 0", 2*sec),
	loco(-5, "balance_mode_1", "Balanceamento Modo 1", "BalanceStand modo 1", 2*sec),
	loco(-5, "balance_mode_2", "Balanceamento Modo 2", "BalanceStand modo 2", 2*sec),

	loco(-6, "stop_movement", "Parar Movimento", "Para todos os movimentos", sec),
}

var patternTable = []Pattern{
	{Key: "greeting", Name: "Saudação", Description: "Sequência de saudação amigável", Movements: []int{26, 18}, Duration: 6 * sec},
	{Key: "farewell", Name: "Despedida", Description: "Sequência de despedida carinhosa", Movements: []int{25, 11}, Duration: 6 * sec},
	{Key: "thinking", Name: "Pensando", Description: "Gesto de reflexão", Movements: []int{32}, Duration: 3 * sec},
	{Key: "agreement", Name: "Concordando", Description: "Sequência de concordância", Movements: []int{15, 17}, Duration: 6 * sec},
	{Key: "celebration", Name: "Celebração", Description: "Sequência de comemoração", Movements: []int{15, 24}, Duration: 6 * sec},
	{Key: "love", Name: "Amor", Description: "Sequência romântica", Movements: []int{33, 13}, Duration: 6 * sec},
	{Key: "attention", Name: "Atenção", Description: "Chamando atenção", Movements: []int{31, 35}, Duration: 6 * sec},
	{Key: "reject", Name: "Rejeitar", Description: "Gesto de negação", Movements: []int{22}, Duration: 3 * sec},
	{Key: "welcome", Name: "Bem-vindo", Description: "Sequência de boas-vindas", Movements: []int{19, 27}, Duration: 6 * sec},
}

// Ids the firmware answers with error 7402.
var unavailableIDs = []int{
	10, 14, 16, 20, 21, 28, 29, 30, 36, 37, 38, 39,
	40, 41, 42, 43, 44, 45, 46, 47, 48, 49, 50,
}
