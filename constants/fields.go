package constants

// RegistryField is one named attribute extracted from a registry document.
type RegistryField struct {
	Name        string
	Description string
}

// RegistryFields is the default schema for Brazilian real-estate registry
// (matrícula) documents. Order is stable and drives output key order.
var RegistryFields = []RegistryField{
	{"cidade_do_imovel", "Nome da cidade onde o imóvel está localizado"},
	{"zona", "Urbana ou rural"},
	{"tipo_do_imovel", "Classificação do imóvel (e.g., terreno, casa, apartamento)"},
	{"unidade_de_medida", "Medida padrão (e.g., metros quadrados)"},
	{"area_total", "Área total do imóvel"},
	{"area_atual", "Área atualizada do imóvel"},
	{"area_construida", "Área construída no terreno (se houver)"},
	{"area_privativa", "Área de uso exclusivo do imóvel"},
	{"area_comum", "Área compartilhada, em caso de condomínios"},
	{"fracao_ideal", "Percentual de propriedade sobre o todo (condomínios ou terrenos compartilhados)"},
	{"inscricao_imobiliaria", "Número de identificação municipal ou fiscal"},
	{"informacoes_adicionais", "Campo para descrever algo relevante sobre o imóvel"},
	{"localizacao", "Rua/número ou endereço cadastrado"},
	{"ato", "Identificação do tipo de registro (e.g., usucapião)"},
	{"data", "Data da transação ou registro"},
	{"transacao", "Valor da transação registrada (se aplicável)"},
	{"avaliacao", "Valor avaliado do imóvel"},
	{"area_transmitida", "Área envolvida na transação"},
	{"titulo", "Descrição do título ou documento relacionado à transação"},
	{"tipo_de_parte", "Indica se é adquirente, transmitente, etc"},
	{"dependencia", "Código de dependência relacionado ao proprietário"},
	{"cpf_cnpj", "Número de identificação do proprietário (pessoa física ou jurídica)"},
	{"nome", "Nome do proprietário registrado"},
	{"dados_do_conjuge", "Informações do cônjuge (nome, CPF, qualificação)"},
	{"procurador", "Informação de procurador, se aplicável"},
	{"participacao", "Percentual de propriedade individual"},
	{"modelo_de_qualificacao", "Modelo para categorizar o proprietário"},
	{"logradouro_descricao_livre", "Nome das ruas que formam o entorno do imóvel"},
	{"distancia_da_esquina", "Medida de distância das esquinas"},
	{"faz_esquina", "Indica se a rua faz esquina com outra"},
	{"editor_de_texto", "Permite adicionar uma descrição detalhada do imóvel"},
}

// SchemaName is the structured-output contract name sent to completion services.
const SchemaName = "registro_imovel"

// FieldNames returns the default field names in order.
func FieldNames() []string {
	result := make([]string, len(RegistryFields))
	for i, f := range RegistryFields {
		result[i] = f.Name
	}
	return result
}
