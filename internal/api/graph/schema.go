package graph

const schemaString = `
type Profile {
  id: ID!
  identity: String!
  role: String!
  hasVoted: Boolean!
  name: String!
  age: Int!
  email: String
  mobile: String
  address: String!
}

type AuthPayload {
  token: String!
  profile: Profile!
}

type Candidate {
  id: ID!
  name: String!
  party: String!
  age: Int!
  voteCount: Int!
}

type CandidateSummary {
  name: String!
  party: String!
}

type PartyTally {
  party: String!
  count: Int!
}

type TallyAudit {
  candidateId: ID!
  party: String!
  voteCount: Int!
  recordCount: Int!
  consistent: Boolean!
}

input SignupInput {
  identity: String!
  password: String!
  role: String
  name: String!
  age: Int!
  email: String
  mobile: String
  address: String
}

input CandidateInput {
  name: String!
  party: String!
  age: Int!
}

input CandidatePatchInput {
  name: String
  party: String
  age: Int
}

type Query {
  # 公开候选人列表
  candidates: [CandidateSummary!]!

  # 党派票数，按票数降序
  voteCount: [PartyTally!]!

  # 当前登录选民
  me: Profile!

  # 票数核对，仅管理员
  auditTally: [TallyAudit!]!
}

type Mutation {
  signup(input: SignupInput!): AuthPayload!
  login(identity: String!, password: String!): String!
  changePassword(currentPassword: String!, newPassword: String!): Boolean!

  createCandidate(input: CandidateInput!): Candidate!
  updateCandidate(id: ID!, input: CandidatePatchInput!): Candidate!
  deleteCandidate(id: ID!): Candidate!

  # 投票，每个选民只能成功一次
  castVote(candidateId: ID!): Boolean!
}

schema {
  query: Query
  mutation: Mutation
}
`
